package fastloader

import "github.com/pspoerri/fastloader/internal/border"

// BorderCreator, and its built-in implementations, decide how a view's
// ghost region is populated (spec.md §4.4). The real logic lives in
// internal/border so internal/planner can depend on it without importing
// the root package; these are plain re-exports of the public API surface
// SPEC_FULL.md's package map places here.
type (
	BorderCreator     = border.BorderCreator
	ViewGeometry      = border.ViewGeometry
	BorderTileRequest = border.BorderTileRequest

	ConstantBorderCreator  = border.ConstantBorderCreator
	ReplicateBorderCreator = border.ReplicateBorderCreator
)
