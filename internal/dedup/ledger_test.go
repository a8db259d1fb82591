package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLedgerMarkAndCheck(t *testing.T) {
	l := NewLedger(time.Minute)

	assert.False(t, l.HasProcessed(42))
	l.MarkProcessed(42)
	assert.True(t, l.HasProcessed(42))
	assert.False(t, l.HasProcessed(43))
}

func TestLedgerCheckAndMarkIsIdempotent(t *testing.T) {
	l := NewLedger(time.Minute)

	applied := 0
	for i := 0; i < 3; i++ {
		if l.CheckAndMark(Key(42)) {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, l.Len())
}

func TestLedgerClear(t *testing.T) {
	l := NewLedger(time.Minute)
	l.MarkProcessed(1)
	l.MarkProcessed(2)

	l.Clear()

	assert.Equal(t, 0, l.Len())
	assert.True(t, l.CheckAndMark(1))
}

func TestLedgerRunClearsPeriodically(t *testing.T) {
	l := NewLedger(10 * time.Millisecond)
	l.MarkProcessed(7)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "event:42", Key(42).String())
	assert.True(t, Key(42).Valid())
	assert.False(t, Key(0).Valid())
}
