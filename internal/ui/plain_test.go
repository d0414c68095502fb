package ui

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatrepair/internal/repair"
)

func TestPlainRenderer_PrintsTransitions(t *testing.T) {
	// Given: a started plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	target := repair.Target{ID: "ws1", Name: "webapp"}
	require.NoError(t, r.Start(context.Background(), []repair.Target{target}))

	// When: the pipeline moves through its states
	for _, s := range []repair.State{repair.StateIdle, repair.StateScanning, repair.StateReconciling, repair.StateDone} {
		r.Observe(target, s)
	}
	require.NoError(t, r.Stop())

	// Then: one line per non-idle transition
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"[SCAN] webapp", "[RECONCILE] webapp", "[DONE] webapp"}, lines)
}

func TestPlainRenderer_FallsBackToID(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Observe(repair.Target{ID: "abc123"}, repair.StateFailed)

	assert.Equal(t, "[FAIL] abc123\n", buf.String())
}

func TestPlainRenderer_NoANSICodes(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	target := repair.Target{ID: "ws1", Name: "webapp"}

	for _, s := range []repair.State{repair.StateScanning, repair.StateBackingUp, repair.StateWriting} {
		r.Observe(target, s)
	}

	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestPlainRenderer_ConcurrentObserve(t *testing.T) {
	// Given: several targets observed from several goroutines
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	targets := []repair.Target{{ID: "a", Name: "a"}, {ID: "b", Name: "b"}, {ID: "c", Name: "c"}}
	require.NoError(t, r.Start(context.Background(), targets))

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(tg repair.Target) {
			defer wg.Done()
			r.Observe(tg, repair.StateScanning)
			r.Observe(tg, repair.StateDone)
		}(target)
	}
	wg.Wait()

	// Then: every line is intact
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 6)
	for _, line := range lines {
		assert.Regexp(t, `^\[(SCAN|DONE)\] [abc]$`, line)
	}
}
