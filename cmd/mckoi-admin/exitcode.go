package main

import "github.com/mckoi/mckoiddb/pkg/mckoierr"

// exitCodeFor maps a returned error to spec.md §6.4's exit codes: 0
// success, 1 configuration error, 2 IO/network error, 3 consistency/
// corruption detected. cobra only calls this on a non-nil error, so 0
// never appears here.
func exitCodeFor(err error) int {
	switch mckoierr.KindOf(err) {
	case mckoierr.KindConfig:
		return 1
	case mckoierr.KindNetwork, mckoierr.KindFileSystem, mckoierr.KindNotFound:
		return 2
	case mckoierr.KindCommitFault, mckoierr.KindImmutableConflict, mckoierr.KindInvalidated, mckoierr.KindInternal:
		return 3
	default:
		return 3
	}
}
