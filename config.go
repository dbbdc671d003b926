package fastloader

import "log/slog"

// Config holds per-engine, per-level construction parameters. It is built
// from an Option list in New and validated eagerly — an invalid Config never
// starts a pipeline (SPEC_FULL.md §7 "Construction-time validation"),
// mirroring the fail-fast functional-options pattern used throughout
// transparency-dev-trillian-tessera (see WithBatching, WithPushback,
// WithCheckpointInterval in its log.go).
type Config struct {
	radii []int64 // length 1 (every dimension) or nbDims; the same radii apply to every level

	cacheCapacityMB      []int64 // per level; empty means "use default", entries must be > 0
	autoCacheFraction    float64 // if > 0, overrides cacheCapacityMB with a RAM-fraction budget
	viewAvailable        []int   // per level
	releaseCountPerLevel []int   // per level

	ordered bool

	borderCreator BorderCreator
	traversal     Traversal

	copyThreads  int
	fetchThreads int

	logger *slog.Logger
}

const (
	// DefaultCacheCapacityMB is used for a level when WithCacheCapacityMB
	// (or a per-level vector covering it) is not supplied.
	DefaultCacheCapacityMB = 256
	// DefaultViewAvailable is the default free-pool size per level.
	DefaultViewAvailable = 4
	// DefaultReleaseCount is the default number of releases before a view
	// buffer recycles.
	DefaultReleaseCount = 1
	// DefaultCopyThreads is the default Copier pool size (spec.md §4.5).
	DefaultCopyThreads = 2
	// DefaultFetchThreads is the default TileFetcher pool size per level,
	// used unless WithFetchThreads is given. The TileLoader interface does
	// not report a thread count, so the loader has no say in this value.
	DefaultFetchThreads = 4
)

// Option configures a Config. Options are applied in order, so a later
// option overrides an earlier conflicting one.
type Option func(*Config)

// WithRadius sets the same halo radius for every dimension.
func WithRadius(n int64) Option {
	return func(c *Config) { c.radii = []int64{n} }
}

// WithRadii sets a per-dimension halo radius. len(r) must equal nbDims (a
// length of 1 is also accepted and applies to every dimension); this is
// checked in New, not here, since Config doesn't yet know nbDims.
func WithRadii(r []int64) Option {
	return func(c *Config) { c.radii = append([]int64(nil), r...) }
}

// WithCacheCapacityMB sets the same physical-tile cache budget for every
// pyramid level.
func WithCacheCapacityMB(mb int64) Option {
	return func(c *Config) { c.cacheCapacityMB = []int64{mb} }
}

// WithCacheCapacityMBPerLevel sets a per-level physical-tile cache budget.
func WithCacheCapacityMBPerLevel(mb []int64) Option {
	return func(c *Config) { c.cacheCapacityMB = append([]int64(nil), mb...) }
}

// WithAutoCacheCapacity sizes every level's physical-tile cache from a
// fraction of total system RAM instead of a fixed WithCacheCapacityMB
// value, using internal/memlimit (adapted from the teacher's
// ComputeMemoryLimit). It takes precedence over WithCacheCapacityMB; if RAM
// detection fails or the computed budget is too small, a warning is logged
// and the engine falls back to the WithCacheCapacityMB value, or to
// DefaultCacheCapacityMB when none was given.
func WithAutoCacheCapacity(fraction float64) Option {
	return func(c *Config) { c.autoCacheFraction = fraction }
}

// WithViewAvailable sets the same free-pool size for every level.
func WithViewAvailable(n int) Option {
	return func(c *Config) { c.viewAvailable = []int{n} }
}

// WithViewAvailablePerLevel sets a per-level free-pool size.
func WithViewAvailablePerLevel(n []int) Option {
	return func(c *Config) { c.viewAvailable = append([]int(nil), n...) }
}

// WithReleaseCount sets the same release count for every level.
func WithReleaseCount(n int) Option {
	return func(c *Config) { c.releaseCountPerLevel = []int{n} }
}

// WithReleaseCountPerLevel sets a per-level release count (for pyramidal
// consumers that read a level's views a different number of times than
// another level's).
func WithReleaseCountPerLevel(n []int) Option {
	return func(c *Config) { c.releaseCountPerLevel = append([]int(nil), n...) }
}

// WithOrdered selects ordered (traversal-order) or unordered
// (completion-order) delivery.
func WithOrdered(ordered bool) Option {
	return func(c *Config) { c.ordered = ordered }
}

// WithBorderCreator selects a custom BorderCreator implementation. Absent
// this option, the engine defaults to ReplicateBorderCreator.
func WithBorderCreator(b BorderCreator) Option {
	return func(c *Config) { c.borderCreator = b }
}

// WithConstantBorder is shorthand for WithBorderCreator(&ConstantBorderCreator{Value: value}).
func WithConstantBorder(value []byte) Option {
	return func(c *Config) { c.borderCreator = &ConstantBorderCreator{Value: value} }
}

// WithTraversal selects a custom Traversal implementation. Absent this
// option, the engine defaults to NaiveTraversal.
func WithTraversal(t Traversal) Option {
	return func(c *Config) { c.traversal = t }
}

// WithCopyThreads sets the Copier pool size. Every level gets its own pool
// of this size.
func WithCopyThreads(n int) Option {
	return func(c *Config) { c.copyThreads = n }
}

// WithFetchThreads sets the TileFetcher pool size, replacing
// DefaultFetchThreads. Every level gets its own pool of this size.
func WithFetchThreads(n int) Option {
	return func(c *Config) { c.fetchThreads = n }
}

// WithLogger installs a structured logger for engine diagnostics at
// Debug/Warn level, matching MeKo-Christian-WaterColorMap/internal/cmd/root.go's
// slog.SetDefault-based setup. The engine logs a fetcher pool that exits
// with an error and the outcome of WithAutoCacheCapacity's RAM-based
// sizing; slot evictions, individual fetch failures and pool exhaustion
// are not logged. Nil-safe: a nil logger (or no WithLogger option) falls
// back to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.logger = l }
}

// newConfig applies defaults then every supplied Option.
func newConfig(opts []Option) *Config {
	c := &Config{
		radii:         []int64{1},
		borderCreator: ReplicateBorderCreator{},
		traversal:     NaiveTraversal{},
		copyThreads:   DefaultCopyThreads,
		fetchThreads:  DefaultFetchThreads,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// validate performs the per-level length/value checks from SPEC_FULL.md §7
// that depend on nbDims/nbLevels, which newConfig alone can't know.
func (c *Config) validate(nbDims, nbLevels int) error {
	if len(c.radii) != 1 && len(c.radii) != nbDims {
		return configErrorf("radii", "length %d must be 1 or nbDims (%d)", len(c.radii), nbDims)
	}
	for _, r := range c.radii {
		if r < 0 {
			return configErrorf("radii", "must be >= 0, got %d", r)
		}
	}

	if err := validatePerLevel("cacheCapacityMB", c.cacheCapacityMB, nbLevels); err != nil {
		return err
	}
	if c.autoCacheFraction < 0 || c.autoCacheFraction > 1 {
		return configErrorf("autoCacheFraction", "must be in [0,1], got %f", c.autoCacheFraction)
	}
	if err := validatePerLevelInt("viewAvailable", c.viewAvailable, nbLevels); err != nil {
		return err
	}
	if err := validatePerLevelInt("releaseCountPerLevel", c.releaseCountPerLevel, nbLevels); err != nil {
		return err
	}
	if c.copyThreads <= 0 {
		return configErrorf("copyThreads", "must be > 0, got %d", c.copyThreads)
	}
	if c.fetchThreads <= 0 {
		return configErrorf("fetchThreads", "must be > 0, got %d", c.fetchThreads)
	}
	if c.borderCreator == nil {
		return configErrorf("borderCreator", "must not be nil")
	}
	if c.traversal == nil {
		return configErrorf("traversal", "must not be nil")
	}
	return nil
}

func validatePerLevel(field string, v []int64, nbLevels int) error {
	if len(v) == 0 {
		return nil
	}
	if len(v) != 1 && len(v) != nbLevels {
		return configErrorf(field, "length %d must be 1 or nbLevels (%d)", len(v), nbLevels)
	}
	for _, x := range v {
		if x <= 0 {
			return configErrorf(field, "must be > 0, got %d", x)
		}
	}
	return nil
}

func validatePerLevelInt(field string, v []int, nbLevels int) error {
	if len(v) == 0 {
		return nil
	}
	if len(v) != 1 && len(v) != nbLevels {
		return configErrorf(field, "length %d must be 1 or nbLevels (%d)", len(v), nbLevels)
	}
	for _, x := range v {
		if x <= 0 {
			return configErrorf(field, "must be > 0, got %d", x)
		}
	}
	return nil
}

// radiiForDims expands the configured radii to exactly nbDims entries.
func (c *Config) radiiForDims(nbDims int) []int64 {
	if len(c.radii) == nbDims {
		return append([]int64(nil), c.radii...)
	}
	out := make([]int64, nbDims)
	for i := range out {
		out[i] = c.radii[0]
	}
	return out
}

// atLevel64 expands a per-level int64 vector (or a single default) to the
// value for level, falling back to def when unset.
func atLevel64(v []int64, level int, def int64) int64 {
	if len(v) == 0 {
		return def
	}
	if len(v) == 1 {
		return v[0]
	}
	return v[level]
}

// atLevelInt is the int counterpart of atLevel64.
func atLevelInt(v []int, level int, def int) int {
	if len(v) == 0 {
		return def
	}
	if len(v) == 1 {
		return v[0]
	}
	return v[level]
}
