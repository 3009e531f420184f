package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirecheck/wirecheck/internal/pipeline"
)

func TestBatching_SizeThresholdFlush(t *testing.T) {
	sink := &recordingSink{autoDone: true}
	b := NewBatching(sink, BatchingConfig{MaxBytes: 8})

	w1 := b.Write([]byte("12345"))
	assert.Empty(t, sink.submitted(), "below threshold, nothing released")

	w2 := b.Write([]byte("6789"))
	require.NoError(t, w1.Await(time.Second))
	require.NoError(t, w2.Await(time.Second))

	got := sink.submitted()
	require.Len(t, got, 1, "one coalesced payload")
	assert.Equal(t, []byte("123456789"), got[0])
}

func TestBatching_DelayTimerFlush(t *testing.T) {
	sink := &recordingSink{autoDone: true}
	b := NewBatching(sink, BatchingConfig{MaxBytes: 1 << 20, MaxDelay: 15 * time.Millisecond})
	defer b.Close()

	w := b.Write([]byte("slow"))
	assert.Empty(t, sink.submitted())

	require.NoError(t, w.Await(time.Second), "delay timer must release the write")
	got := sink.submitted()
	require.Len(t, got, 1)
	assert.Equal(t, []byte("slow"), got[0])
}

func TestBatching_BoundaryFlush(t *testing.T) {
	sink := &recordingSink{autoDone: true}
	b := NewBatching(sink, BatchingConfig{MaxBytes: 1 << 20, FlushOnBoundary: true})

	w := b.Write([]byte("record"))
	assert.Empty(t, sink.submitted())

	b.MarkBoundary()
	require.NoError(t, w.Await(time.Second))

	got := sink.submitted()
	require.Len(t, got, 1)
	assert.Equal(t, []byte("record"), got[0])
}

func TestBatching_BoundaryIgnoredWhenDisabled(t *testing.T) {
	sink := &recordingSink{autoDone: true}
	b := NewBatching(sink, BatchingConfig{MaxBytes: 1 << 20})

	b.Write([]byte("staged"))
	b.MarkBoundary()
	assert.Empty(t, sink.submitted(), "boundary must not flush when disabled")

	b.Flush()
	require.Len(t, sink.submitted(), 1)
}

func TestBatching_ExplicitFlushDrainsEverything(t *testing.T) {
	sink := &recordingSink{autoDone: true}
	b := NewBatching(sink, BatchingConfig{MaxBytes: 1 << 20, MaxDelay: time.Hour})

	w1 := b.Write([]byte("sub-"))
	w2 := b.Write([]byte("threshold"))
	b.Flush()

	require.NoError(t, w1.Await(time.Second))
	require.NoError(t, w2.Await(time.Second))
	assert.Equal(t, []byte("sub-threshold"), joined(sink.submitted()))
}

func TestBatching_OrderPreservedAcrossFlushes(t *testing.T) {
	sink := &recordingSink{autoDone: true}
	b := NewBatching(sink, BatchingConfig{MaxBytes: 4})

	var pends []*pipeline.Pending
	var want []byte
	for i := 0; i < 64; i++ {
		chunk := []byte{byte(i), byte(i >> 1), byte(i >> 2)}
		want = append(want, chunk...)
		pends = append(pends, b.Write(chunk))
	}
	b.Flush()

	for _, p := range pends {
		require.NoError(t, p.Await(time.Second))
	}
	assert.Equal(t, want, joined(sink.submitted()), "flushes must not reorder staged bytes")
}

func TestBatching_ZeroLengthWritePendingResolves(t *testing.T) {
	sink := &recordingSink{autoDone: true}
	b := NewBatching(sink, BatchingConfig{MaxBytes: 1 << 20})

	w := b.Write(nil)
	select {
	case <-w.Done():
		t.Fatal("zero-length pending must wait for the next flush")
	default:
	}

	b.Flush()
	require.NoError(t, w.Await(time.Second))

	got := sink.submitted()
	require.Len(t, got, 1, "empty fragment is still submitted")
	assert.Empty(t, got[0])
}

func TestBatching_ZeroLengthMergedWithStagedBytes(t *testing.T) {
	sink := &recordingSink{autoDone: true}
	b := NewBatching(sink, BatchingConfig{MaxBytes: 1 << 20})

	wEmpty := b.Write(nil)
	wData := b.Write([]byte("payload"))
	b.Flush()

	require.NoError(t, wEmpty.Await(time.Second), "empty write's completion must not be merged away")
	require.NoError(t, wData.Await(time.Second))

	got := sink.submitted()
	require.Len(t, got, 1)
	assert.Equal(t, []byte("payload"), got[0])
}

func TestBatching_SubmitErrorPropagatesToAllWaiters(t *testing.T) {
	fault := errors.New("pipeline rejected batch")
	sink := &recordingSink{autoDone: true, err: fault}
	b := NewBatching(sink, BatchingConfig{MaxBytes: 1 << 20})

	w1 := b.Write([]byte("a"))
	w2 := b.Write([]byte("b"))
	b.Flush()

	assert.ErrorIs(t, w1.Await(time.Second), fault)
	assert.ErrorIs(t, w2.Await(time.Second), fault)
}

func TestBatching_DeferredCompletionChains(t *testing.T) {
	sink := &recordingSink{}
	b := NewBatching(sink, BatchingConfig{MaxBytes: 1 << 20})

	w := b.Write([]byte("deferred"))
	b.Flush()

	select {
	case <-w.Done():
		t.Fatal("waiter must not resolve before the sink completes")
	default:
	}

	sink.mu.Lock()
	require.Len(t, sink.pendings, 1)
	sub := sink.pendings[0]
	sink.mu.Unlock()
	sub.Complete(nil)

	require.NoError(t, w.Await(time.Second))
}

func TestBatching_CloseFlushesRemainder(t *testing.T) {
	sink := &recordingSink{autoDone: true}
	b := NewBatching(sink, BatchingConfig{MaxBytes: 1 << 20, MaxDelay: time.Hour})

	w := b.Write([]byte("tail"))
	require.NoError(t, b.Close())
	require.NoError(t, w.Await(time.Second), "close must not strand staged bytes")

	late := b.Write([]byte("too late"))
	assert.ErrorIs(t, late.Await(time.Second), pipeline.ErrClosed)
	assert.Equal(t, []byte("tail"), joined(sink.submitted()))
}

func TestBatching_TimerRearmsAfterFlush(t *testing.T) {
	sink := &recordingSink{autoDone: true}
	b := NewBatching(sink, BatchingConfig{MaxBytes: 1 << 20, MaxDelay: 10 * time.Millisecond})
	defer b.Close()

	require.NoError(t, b.Write([]byte("first")).Await(time.Second))
	require.NoError(t, b.Write([]byte("second")).Await(time.Second))

	got := sink.submitted()
	require.Len(t, got, 2, "each staged window gets its own timer")
	assert.Equal(t, []byte("first"), got[0])
	assert.Equal(t, []byte("second"), got[1])
}
