package botdialogs

import (
	"github.com/flexigpt/botdialogs-go/spec"
)

// RoutePriorities orders route types for disambiguation; a higher value wins
// regardless of relative score. The defaults keep global commands able to
// interrupt a deep dialog while stack actions outrank plain continuation.
type RoutePriorities map[spec.RouteType]int

// DefaultRoutePriorities returns the default priority assignment.
func DefaultRoutePriorities() RoutePriorities {
	return RoutePriorities{
		spec.RouteTypeGlobalAction: 4,
		spec.RouteTypeStackAction:  3,
		spec.RouteTypeActiveDialog: 2,
	}
}

func (p RoutePriorities) of(t spec.RouteType) int {
	if v, ok := p[t]; ok {
		return v
	}
	return 1
}

// bestLibraryName scans the callstack outermost to innermost and returns the
// first frame-owning library name that appears in the candidate pool. It
// defaults to the root library name, keeping routing sticky to whichever
// library currently owns the conversation.
func bestLibraryName(routes []spec.RouteResult, callstack []spec.DialogStackEntry, rootName string) string {
	inPool := map[string]bool{}
	for _, r := range routes {
		inPool[r.LibraryName] = true
	}
	for _, frame := range callstack {
		if libName, _, ok := SplitDialogID(frame.ID); ok && inPool[libName] {
			return libName
		}
	}
	return rootName
}

// bestRoute picks the winning candidate from the merged pool:
//
//  1. Candidates with score <= 0 are ignored.
//  2. Higher priority wins outright, regardless of score.
//  3. At equal priority, stack-action ties go to the larger dialog index
//     (closer to the top of the stack, the more recent action), and
//     global-action ties go to the candidate from the best library.
//
// nil means no candidate qualified; the caller falls back to resuming the
// active dialog, or treats the turn as unhandled on an empty stack.
func bestRoute(routes []spec.RouteResult, callstack []spec.DialogStackEntry, rootName string, prio RoutePriorities) *spec.RouteResult {
	bestLib := bestLibraryName(routes, callstack, rootName)

	var best *spec.RouteResult
	for i := range routes {
		r := &routes[i]
		if r.Score <= 0 {
			continue
		}
		if best == nil {
			best = r
			continue
		}

		rp, bp := prio.of(r.RouteType), prio.of(best.RouteType)
		switch {
		case rp > bp:
			best = r
		case rp < bp:
			// keep best
		case r.RouteType == spec.RouteTypeStackAction &&
			r.RouteData.DialogIndex > best.RouteData.DialogIndex:
			best = r
		case r.RouteType == spec.RouteTypeGlobalAction &&
			r.LibraryName == bestLib && best.LibraryName != bestLib:
			best = r
		}
	}
	return best
}
