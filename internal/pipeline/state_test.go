package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateCollecting, true},
		{StateCollecting, StateFormatting, true},
		{StateFormatting, StateMerging, true},
		{StateMerging, StateDone, true},
		{StateIdle, StateFailed, true},
		{StateCollecting, StateFailed, true},
		{StateMerging, StateFailed, true},
		{StateIdle, StateMerging, false},
		{StateFormatting, StateCollecting, false},
		{StateDone, StateFailed, false},
		{StateFailed, StateIdle, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestWorkspace(t *testing.T) {
	root := t.TempDir()

	ws, err := AcquireWorkspace(root, "01TESTRUN")
	assert.NoError(t, err)
	assert.DirExists(t, ws.Dir)
	assert.Contains(t, ws.Dir, "browsediary-01TESTRUN-")

	assert.NoError(t, ws.Release())
	assert.NoDirExists(t, ws.Dir)
	assert.NoError(t, ws.Release())
}
