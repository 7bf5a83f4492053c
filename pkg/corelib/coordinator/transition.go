package coordinator

import "github.com/gridfetch/gridfetch/pkg/corelib"

// edges enumerates every permitted task status transition. Anything not
// listed here is forbidden.
var edges = map[corelib.TaskStatus]map[corelib.TaskStatus]bool{
	corelib.StatusPending: {
		corelib.StatusConnecting: true,
	},
	corelib.StatusConnecting: {
		corelib.StatusRunning: true,
		corelib.StatusError:   true,
	},
	corelib.StatusRunning: {
		corelib.StatusComplete: true,
		corelib.StatusPaused:   true,
		corelib.StatusError:    true,
	},
	corelib.StatusPaused: {
		// Resume is a fresh Start beginning at step 1.
		corelib.StatusConnecting: true,
	},
	corelib.StatusError: {
		// "reset": a process restart re-enters pending for any
		// non-terminal task.
		corelib.StatusPending: true,
	},
}

// canTransition reports whether from -> to is a permitted edge.
func canTransition(from, to corelib.TaskStatus) bool {
	allowed, ok := edges[from]
	if !ok {
		return false
	}
	return allowed[to]
}
