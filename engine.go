package fastloader

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/pspoerri/fastloader/internal/bufpool"
	"github.com/pspoerri/fastloader/internal/copier"
	"github.com/pspoerri/fastloader/internal/geom"
	"github.com/pspoerri/fastloader/internal/memlimit"
	"github.com/pspoerri/fastloader/internal/planner"
	"github.com/pspoerri/fastloader/internal/requester"
	"github.com/pspoerri/fastloader/internal/tilecache"
	"github.com/pspoerri/fastloader/internal/viewpool"
)

// ErrClosed is returned by Consumer.Next once a level's traversal has been
// fully delivered and the level's output channel has been closed (spec.md
// §2 step 8 / §5 "Cancellation & termination").
var ErrClosed = errors.New("fastloader: engine closed")

// levelPipeline wires every stage of spec.md §2 for a single pyramid
// level: its own free pool, cache, copier pool, and (in ordered mode)
// reorder buffer, independent of every other level's capacity and
// back-pressure.
type levelPipeline struct {
	level    int
	fullDims geom.Dims
	tileDims geom.Dims
	radii    []int64
	elemSize int

	pool       *viewpool.Pool
	recycler   *viewpool.Recycler
	cache      *tilecache.Cache
	copierPool *copier.Pool
	bufPool    *bufpool.Pool
	fetchJobs  chan tilecache.FetchJob

	// inFlight counts views that have been handed to planner.Plan but
	// whose OnComplete has not yet fired. out must not be closed until
	// this drains to zero, since Plan dispatches the copy and the
	// OnComplete delivery asynchronously.
	inFlight sync.WaitGroup

	out chan *viewpool.View
}

// Engine wires the full view-assembly pipeline (spec.md §2) for every
// pyramid level exposed by a TileLoader.
type Engine struct {
	loader  TileLoader
	cfg     *Config
	logger  *slog.Logger
	nbDims  int
	nbLevel int

	levels []*levelPipeline

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates loader and cfg (SPEC_FULL.md §7 "Construction-time
// validation"), wires a levelPipeline per pyramid level, and starts every
// level's TileFetcher and Copier worker pools. The requester and planner
// stage goroutines are launched later, by Start.
func New(loader TileLoader, opts ...Option) (*Engine, error) {
	if err := validateTileLoader(loader); err != nil {
		return nil, err
	}
	cfg := newConfig(opts)
	nbDims := loader.NbDims()
	nbLevels := loader.NbPyramidLevels()
	if err := cfg.validate(nbDims, nbLevels); err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		loader:  loader,
		cfg:     cfg,
		logger:  logger,
		nbDims:  nbDims,
		nbLevel: nbLevels,
		ctx:     ctx,
		cancel:  cancel,
	}

	radii := cfg.radiiForDims(nbDims)

	autoCacheBytes := int64(0)
	if cfg.autoCacheFraction > 0 {
		if total := memlimit.CacheCapacityBytes(cfg.autoCacheFraction, logger); total > 0 {
			autoCacheBytes = total / int64(nbLevels)
		}
	}

	for level := 0; level < nbLevels; level++ {
		fullDims := loader.FullDims(level)
		tileDims := loader.TileDims(level)
		if err := validateLevelDims(level, fullDims, tileDims); err != nil {
			cancel()
			return nil, err
		}

		viewShape := geom.ViewShape(tileDims, radii)
		viewAvail := atLevelInt(cfg.viewAvailable, level, DefaultViewAvailable)
		releaseCount := atLevelInt(cfg.releaseCountPerLevel, level, DefaultReleaseCount)
		cacheCapMB := atLevel64(cfg.cacheCapacityMB, level, DefaultCacheCapacityMB)
		var cacheCapBytes int64
		if autoCacheBytes > 0 {
			cacheCapBytes = autoCacheBytes
		} else {
			cacheCapBytes = cacheCapMB * 1024 * 1024
		}

		pool := viewpool.New(viewAvail, viewShape, loader.ElementSize(), releaseCount)
		fetchJobs := make(chan tilecache.FetchJob, cfg.fetchThreads*2)
		bufPool := bufpool.New()
		cache := tilecache.New(cacheCapBytes, fetchJobs, bufPool)
		copierPool := copier.NewPool(cfg.copyThreads, viewAvail*2)

		lp := &levelPipeline{
			level:      level,
			fullDims:   fullDims,
			tileDims:   tileDims,
			radii:      radii,
			elemSize:   loader.ElementSize(),
			pool:       pool,
			recycler:   viewpool.NewRecycler(pool),
			cache:      cache,
			copierPool: copierPool,
			bufPool:    bufPool,
			fetchJobs:  fetchJobs,
			out:        make(chan *viewpool.View, viewAvail),
		}
		e.levels = append(e.levels, lp)

		e.wg.Add(1)
		go func(level int) {
			defer e.wg.Done()
			err := tilecache.RunFetchers(ctx, cfg.fetchThreads, fetchJobs, cache, loaderAdapter{loader}, func(threadID int) tilecache.Loader {
				return loaderAdapter{loader.Copy()}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("fetcher pool exited with error", "level", level, "error", err)
			}
		}(level)
	}

	return e, nil
}

// loaderAdapter satisfies tilecache.Loader via a fastloader.TileLoader,
// keeping internal/tilecache free of a dependency on the root package.
type loaderAdapter struct{ TileLoader }

// Start launches the ViewRequester/ViewAllocator/Planner glue for every
// level, driving level's Traversal to completion. It must be called at
// most once.
func (e *Engine) Start() {
	for _, lp := range e.levels {
		lp := lp
		nbTiles := geom.TilesAcross(lp.fullDims, lp.tileDims)
		order := e.cfg.traversal.Order(nbTiles)

		requests := make(chan requester.Request, atLevelInt(e.cfg.viewAvailable, lp.level, DefaultViewAvailable))
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			requester.Run(lp.level, order, requests)
		}()

		var reorder *viewpool.Reorder
		if e.cfg.ordered {
			reorder = viewpool.NewReorder(lp.out)
		}

		deps := &planner.Deps{
			Cache:         lp.cache,
			CopierPool:    lp.copierPool,
			BorderCreator: e.cfg.borderCreator,
			BufPool:       lp.bufPool,
			FullDims:      lp.fullDims,
			TileDims:      lp.tileDims,
			ElemSize:      lp.elemSize,
		}
		deps.OnComplete = func(v *viewpool.View) {
			if v.Err() == nil {
				vg := &ViewGeometry{Shape: v.Shape, FrontFill: v.FrontFill, BackFill: v.BackFill, CenterMin: v.CenterMin, CenterMax: v.CenterMax}
				e.cfg.borderCreator.Fill(vg, v.Buf, lp.elemSize)
			}
			if reorder != nil {
				reorder.Submit(v)
			} else {
				lp.out <- v
			}
			lp.inFlight.Done()
		}

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for req := range requests {
				v := lp.pool.Acquire()
				v.TraversalIndex = req.TraversalIndex
				planner.StampGeometry(v, lp.level, req.CenterTileCoord, lp.fullDims, lp.tileDims, lp.radii)
				lp.inFlight.Add(1)
				planner.Plan(v, deps)
			}
			// requests is only closed once the traversal is exhausted
			// (requester.Run), so every dispatched view's OnComplete is
			// guaranteed to run eventually; wait for the last one before
			// closing out, or a late delivery would panic on a closed
			// channel.
			lp.inFlight.Wait()
			if reorder != nil {
				reorder.Close()
			}
			close(lp.out)
		}()
	}
}

// Close tears down every worker pool. Outstanding handles become invalid;
// no per-request cancellation beyond this exists (spec.md §5 "Cancellation
// & termination").
func (e *Engine) Close() {
	e.cancel()
	for _, lp := range e.levels {
		close(lp.fetchJobs)
	}
	e.wg.Wait()
	// Safe only once e.wg.Wait has returned: that includes the per-level
	// planner loop, which does not exit until every dispatched view's
	// copy work has finished, so no goroutine can still be calling
	// copierPool.Submit.
	for _, lp := range e.levels {
		lp.copierPool.Close()
	}
}

// Consumer returns the Next/Release interface for one pyramid level
// (spec.md §6 "Consumer interface").
func (e *Engine) Consumer(level int) *Consumer {
	return &Consumer{engine: e, lp: e.levels[level]}
}

func validateLevelDims(level int, fullDims, tileDims geom.Dims) error {
	if len(fullDims) == 0 || len(tileDims) == 0 {
		return configErrorf("tileLoader", "level %d has empty dims", level)
	}
	return nil
}
