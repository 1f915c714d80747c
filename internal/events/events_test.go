package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_DeliversInOrder(t *testing.T) {
	b := NewBuffer(8)

	b.Emit(Event{Type: TypeSessionStarted, SessionID: "s1"})
	b.Emit(Event{Type: TypeStepStarted, SessionID: "s1", StepID: "step-1"})
	b.Emit(Event{Type: TypeStepCompleted, SessionID: "s1", StepID: "step-1"})

	assert.Equal(t, TypeSessionStarted, (<-b.Events()).Type)
	assert.Equal(t, TypeStepStarted, (<-b.Events()).Type)
	assert.Equal(t, TypeStepCompleted, (<-b.Events()).Type)
	assert.Zero(t, b.Dropped())
}

func TestBuffer_DropsWhenFullWithoutBlocking(t *testing.T) {
	b := NewBuffer(2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Emit(Event{Type: TypeStepStarted, SessionID: "s1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}

	assert.Equal(t, int64(8), b.Dropped())
}

func TestBuffer_CloseEndsConsumption(t *testing.T) {
	b := NewBuffer(2)
	b.Emit(Event{Type: TypeSessionFinished, SessionID: "s1"})
	b.Close()

	event, ok := <-b.Events()
	require.True(t, ok)
	assert.Equal(t, TypeSessionFinished, event.Type)

	_, ok = <-b.Events()
	assert.False(t, ok)
}

func TestMulti_FansOut(t *testing.T) {
	b1 := NewBuffer(2)
	b2 := NewBuffer(2)
	m := Multi{b1, b2, Nop{}}

	m.Emit(Event{Type: TypeEscalationRequested, SessionID: "s1"})

	assert.Equal(t, TypeEscalationRequested, (<-b1.Events()).Type)
	assert.Equal(t, TypeEscalationRequested, (<-b2.Events()).Type)
}
