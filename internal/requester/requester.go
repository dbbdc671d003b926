// Package requester implements the ViewRequester pipeline stage (spec.md
// §2 step 1): driving a Traversal's tile-coordinate sequence into
// ViewRequests for one pyramid level.
package requester

import "github.com/pspoerri/fastloader/internal/geom"

// Request is a single ViewRequest: one logical tile position to assemble a
// view around.
type Request struct {
	Level           int
	TraversalIndex  int64
	CenterTileCoord geom.Coord
}

// Run emits one Request per coordinate in order, in traversal-index order,
// onto out, then closes out. out should be a bounded channel so the
// downstream ViewAllocator stage's back-pressure (blocking on an empty free
// pool) propagates here naturally (spec.md §9 "bounded queues, not
// unbounded channels").
func Run(level int, order []geom.Coord, out chan<- Request) {
	defer close(out)
	for i, coord := range order {
		out <- Request{Level: level, TraversalIndex: int64(i), CenterTileCoord: coord}
	}
}
