package manager

import (
	"io"
	"testing"
)

// fakeSnapshotSink adapts an io.PipeWriter to raft.SnapshotSink for tests
// that exercise DirectoryFSM.Snapshot/Restore without a real raft node.
type fakeSnapshotSink struct {
	*io.PipeWriter
}

func (s *fakeSnapshotSink) ID() string { return "test-snapshot" }

func (s *fakeSnapshotSink) Cancel() error { return s.PipeWriter.Close() }

func (s *fakeSnapshotSink) Close() error { return s.PipeWriter.Close() }

func newPipe(t *testing.T) (*io.PipeReader, *io.PipeWriter) {
	t.Helper()
	return io.Pipe()
}
