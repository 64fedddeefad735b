package events

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(&buf)
	sink.Emit(Event{Kind: KindPlanComputed, Statements: 2, Time: time.Unix(0, 0).UTC()})
	sink.Emit(Event{Kind: KindApplySucceeded, Statements: 2, Time: time.Unix(1, 0).UTC()})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, KindPlanComputed, first.Kind)
	assert.Equal(t, 2, first.Statements)
}

func TestTextSinkLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTextSink(&buf)
	sink.Emit(Event{Kind: KindApplyFailed, Statements: 3, Error: "statement 4: boom"})
	sink.Emit(Event{Kind: KindFingerprintConflict})

	out := buf.String()
	assert.Contains(t, out, "apply failed after 3 statement(s): statement 4: boom")
	assert.Contains(t, out, "re-plan and try again")
}

func TestMemoryRingAndFollow(t *testing.T) {
	m := NewMemory(3)
	for i := 0; i < 5; i++ {
		m.Emit(Event{Kind: KindApplyStarted, Statements: i})
	}
	recent := m.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, 2, recent[0].Statements)
	assert.Equal(t, 4, recent[2].Statements)

	ch, cancel := m.Follow()
	defer cancel()
	m.Emit(Event{Kind: KindPullCompleted})
	select {
	case e := <-ch:
		assert.Equal(t, KindPullCompleted, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("follower did not receive event")
	}
}

func TestMultiFansOut(t *testing.T) {
	a := NewMemory(10)
	b := NewMemory(10)
	Multi{a, b}.Emit(Event{Kind: KindPlanComputed})
	assert.Len(t, a.Recent(), 1)
	assert.Len(t, b.Recent(), 1)
}
