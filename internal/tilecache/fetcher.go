package tilecache

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/pspoerri/fastloader/internal/geom"
)

// Loader is the minimal surface TileFetcher workers need from an external
// TileLoader: loading one physical tile's bytes. It is satisfied by
// fastloader.TileLoader via a thin adapter in engine.go, keeping this
// package free of a dependency on the root package.
type Loader interface {
	LoadTileFromFile(buf []byte, tileCoord geom.Coord, level int, threadID int) error
}

// RunFetchers starts n TileFetcher workers (spec.md §4.2) pulling FetchJobs
// from jobs and reporting completion back to cache via Cache.Complete. Each
// worker owns an independent Copy() of loader so concurrent fetches never
// share file-position state (spec.md §4.8 "copy()").
//
// RunFetchers returns once ctx is cancelled or jobs is closed, whichever
// comes first; callers close(jobs) to signal end-of-traversal, matching the sentinel
// drain described in spec.md §5 "Cancellation & termination". It propagates
// the first worker error (matching transparency-dev-trillian-tessera's
// errgroup-based worker-pool idiom in internal/fsck/fsck.go), though per
// spec.md §7 fetch failures are ordinarily routed through Cache.Complete
// rather than returned here.
func RunFetchers(ctx context.Context, n int, jobs <-chan FetchJob, cache *Cache, loader Loader, newWorkerLoader func(threadID int) Loader) error {
	eg, ctx := errgroup.WithContext(ctx)
	for threadID := 0; threadID < n; threadID++ {
		threadID := threadID
		workerLoader := loader
		if newWorkerLoader != nil {
			workerLoader = newWorkerLoader(threadID)
		}
		eg.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					err := workerLoader.LoadTileFromFile(job.Buf, job.TileCoord, job.Level, threadID)
					cache.Complete(job.Key, err)
				}
			}
		})
	}
	return eg.Wait()
}
