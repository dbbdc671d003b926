package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	fastloader "github.com/pspoerri/fastloader"
	"github.com/pspoerri/fastloader/internal/geom"
	"github.com/pspoerri/fastloader/internal/preview"
	"github.com/pspoerri/fastloader/loaders/grayscale"
	"github.com/pspoerri/fastloader/loaders/synthetic"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine against a loader and drain every level",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("source", "synthetic", "TileLoader source: synthetic or grayscale")
	runCmd.Flags().String("path", "", "TIFF path (grayscale source only)")
	runCmd.Flags().Int64("width", 4096, "Raster width (synthetic source only)")
	runCmd.Flags().Int64("height", 4096, "Raster height (synthetic source only)")
	runCmd.Flags().Int64("tile-size", 256, "Tile edge length (synthetic source only)")
	runCmd.Flags().Float64("scale", 128, "Perlin noise scale (synthetic source only)")
	runCmd.Flags().Int64("seed", 1337, "Deterministic seed (synthetic source only)")

	runCmd.Flags().Int64("radius", 1, "Halo radius, every dimension")
	runCmd.Flags().Int64("cache-capacity-mb", 0, "Physical-tile cache budget per level in MB (0: engine default)")
	runCmd.Flags().Float64("auto-cache-fraction", 0, "Size the cache from this fraction of system RAM instead (0: disabled)")
	runCmd.Flags().Bool("ordered", false, "Deliver views in traversal order instead of completion order")
	runCmd.Flags().Int("copy-threads", 0, "Copier pool size (0: number of CPUs)")
	runCmd.Flags().Int("fetch-threads", 0, "TileFetcher pool size (0: engine default)")
	runCmd.Flags().Bool("progress", true, "Show a progress bar per level")

	runCmd.Flags().String("preview-dir", "", "If set, write one preview image per level to this directory")
	runCmd.Flags().String("preview-format", "png", "Preview image format: png, jpeg or webp")
	runCmd.Flags().Int("preview-quality", 85, "Preview image quality (jpeg/webp only)")
	runCmd.Flags().Int("preview-max-dim", 0, "Downscale preview images so neither side exceeds this many pixels (0: no downscale)")

	bindFlags := []string{
		"source", "path", "width", "height", "tile-size", "scale", "seed",
		"radius", "cache-capacity-mb", "auto-cache-fraction", "ordered",
		"copy-threads", "fetch-threads", "progress",
		"preview-dir", "preview-format", "preview-quality", "preview-max-dim",
	}
	for _, name := range bindFlags {
		if err := viper.BindPFlag("run."+name, runCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", name, err))
		}
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	source := viper.GetString("run.source")
	path := viper.GetString("run.path")
	width := viper.GetInt64("run.width")
	height := viper.GetInt64("run.height")
	tileSize := viper.GetInt64("run.tile-size")
	scale := viper.GetFloat64("run.scale")
	seed := viper.GetInt64("run.seed")

	radius := viper.GetInt64("run.radius")
	cacheCapacityMB := viper.GetInt64("run.cache-capacity-mb")
	autoCacheFraction := viper.GetFloat64("run.auto-cache-fraction")
	ordered := viper.GetBool("run.ordered")
	copyThreads := viper.GetInt("run.copy-threads")
	fetchThreads := viper.GetInt("run.fetch-threads")
	showProgress := viper.GetBool("run.progress")

	previewDir := viper.GetString("run.preview-dir")
	previewFormat := viper.GetString("run.preview-format")
	previewQuality := viper.GetInt("run.preview-quality")
	previewMaxDim := viper.GetInt("run.preview-max-dim")

	var loader fastloader.TileLoader
	switch source {
	case "synthetic":
		loader = synthetic.New(geom.Dims{height, width}, geom.Dims{tileSize, tileSize}, scale, seed)
	case "grayscale":
		if path == "" {
			return fmt.Errorf("--path is required for --source grayscale")
		}
		l, err := grayscale.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer l.Close()
		loader = l
	default:
		return fmt.Errorf("unsupported source %q (want synthetic or grayscale)", source)
	}

	opts := []fastloader.Option{
		fastloader.WithRadius(radius),
		fastloader.WithOrdered(ordered),
		fastloader.WithLogger(logger),
	}
	if cacheCapacityMB > 0 {
		opts = append(opts, fastloader.WithCacheCapacityMB(cacheCapacityMB))
	}
	if autoCacheFraction > 0 {
		opts = append(opts, fastloader.WithAutoCacheCapacity(autoCacheFraction))
	}
	if copyThreads > 0 {
		opts = append(opts, fastloader.WithCopyThreads(copyThreads))
	} else {
		opts = append(opts, fastloader.WithCopyThreads(runtime.NumCPU()))
	}
	if fetchThreads > 0 {
		opts = append(opts, fastloader.WithFetchThreads(fetchThreads))
	}

	var enc preview.Encoder
	if previewDir != "" {
		var err error
		enc, err = preview.NewEncoder(previewFormat, previewQuality)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(previewDir, 0o755); err != nil {
			return fmt.Errorf("failed to create preview dir: %w", err)
		}
	}

	engine, err := fastloader.New(loader, opts...)
	if err != nil {
		return fmt.Errorf("failed to construct engine: %w", err)
	}
	defer engine.Close()

	start := time.Now()
	engine.Start()

	for level := 0; level < loader.NbPyramidLevels(); level++ {
		if err := drainLevel(engine, loader, level, showProgress, enc, previewDir, previewMaxDim); err != nil {
			return fmt.Errorf("level %d: %w", level, err)
		}
	}

	logger.Info("run complete", "elapsed", time.Since(start).String())
	return nil
}

func drainLevel(engine *fastloader.Engine, loader fastloader.TileLoader, level int, showProgress bool, enc preview.Encoder, previewDir string, previewMaxDim int) error {
	fullDims := loader.FullDims(level)
	tileDims := loader.TileDims(level)
	total := int64(1)
	for i := range fullDims {
		n := (fullDims[i] + tileDims[i] - 1) / tileDims[i]
		total *= n
	}

	var bar *progressBar
	if showProgress {
		bar = newProgressBar(fmt.Sprintf("level %d", level), total)
	}

	consumer := engine.Consumer(level)
	previewWritten := false
	var failures int64
	for i := int64(0); i < total; i++ {
		v, err := consumer.Next()
		if err != nil {
			return err
		}
		if v.Err != nil {
			failures++
		}
		if enc != nil && !previewWritten {
			if img, ierr := preview.ViewToImage(v); ierr == nil {
				img = preview.Downscale(img, previewMaxDim)
				if data, eerr := enc.Encode(img); eerr == nil {
					name := filepath.Join(previewDir, fmt.Sprintf("level-%d%s", level, enc.FileExtension()))
					_ = os.WriteFile(name, data, 0o644)
					previewWritten = true
				}
			}
		}
		consumer.Release(v)
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.Finish()
	}
	if failures > 0 {
		logger.Warn("level completed with failed tiles", "level", level, "failures", failures)
	}
	return nil
}
