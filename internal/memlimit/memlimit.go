// Package memlimit computes a default physical-tile cache capacity from
// system RAM, adapted from the teacher's internal/tile.ComputeMemoryLimit
// (memlimit.go) and its platform-specific totalSystemRAM helpers. The
// teacher used this to size a disk-spill threshold for its whole-image
// tile store; here it sizes WithAutoCacheCapacity's byte budget for
// TileCache (SPEC_FULL.md §6 "cacheCapacityMB[L]") when the caller would
// rather size the cache as a fraction of available memory than pick an
// absolute number.
package memlimit

import (
	"log/slog"
	"runtime"
)

// DefaultFraction is a suggested fraction of total RAM for the cache to
// claim. Nothing applies it automatically: CacheCapacityBytes always uses
// the fraction its caller passes.
const DefaultFraction = 0.5

// CacheCapacityBytes returns the byte budget the physical-tile cache should
// use: fraction of total system RAM, minus the memory the Go runtime has
// already obtained from the OS (MemStats.Sys) and a fixed 512 MiB headroom,
// so the cache doesn't starve the rest of the process.
// Returns 0 if RAM detection fails or the computed budget is unreasonably
// small, in which case the caller should fall back to a fixed default.
func CacheCapacityBytes(fraction float64, logger *slog.Logger) int64 {
	if logger == nil {
		logger = slog.Default()
	}
	totalRAM, err := totalSystemRAM()
	if err != nil {
		logger.Warn("cannot detect system RAM, falling back to fixed cache capacity", "error", err)
		return 0
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	const headroom = 512 * 1024 * 1024
	overhead := m.Sys + headroom

	limit := int64(float64(totalRAM)*fraction) - int64(overhead)
	const minimum = 64 * 1024 * 1024
	if limit < minimum {
		logger.Warn("computed cache capacity too small, falling back to fixed default",
			"computed_mb", limit/(1024*1024))
		return 0
	}
	logger.Debug("auto-sized cache capacity from system RAM",
		"total_ram_mb", totalRAM/(1024*1024), "fraction", fraction, "capacity_mb", limit/(1024*1024))
	return limit
}
