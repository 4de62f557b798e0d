package mrr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/sdmrr/pkg/sdr"
)

// fakeRx returns leading empty reads, then data in chunks of at most max
// samples, then empty reads.
type fakeRx struct {
	mu      sync.Mutex
	leading int
	data    []complex64
	max     int
	pos     int
	err     error
	reads   int
}

var _ sdr.RxStreamer = (*fakeRx)(nil)

func (f *fakeRx) IssueStreamCmd(sdr.StreamCmd) error { return nil }
func (f *fakeRx) Close() error                       { return nil }

func (f *fakeRx) Recv(buf []complex64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return 0, f.err
	}
	if f.leading > 0 {
		f.leading--
		return 0, nil
	}
	n := min(len(buf), len(f.data)-f.pos)
	if f.max > 0 {
		n = min(n, f.max)
	}
	copy(buf, f.data[f.pos:f.pos+n])
	f.pos += n
	return n, nil
}

// idleRx never delivers data.
type idleRx struct{ fakeRx }

func (r *idleRx) Recv([]complex64) (int, error) {
	time.Sleep(time.Millisecond)
	return 0, nil
}

func ramp(n int) []complex64 {
	out := make([]complex64, n)
	for i := range out {
		out[i] = complex(float32(i), float32(-i))
	}
	return out
}

func TestDrain_ChunkingIndependent(t *testing.T) {
	data := ramp(1000)

	for _, chunk := range []int{1, 7, 100, 999, 1000, 5000} {
		for _, maxRead := range []int{0, 3, 250} {
			rx := &fakeRx{leading: 5, data: data, max: maxRead}
			buf := make([]complex64, len(data))

			n, err := drain(context.Background(), rx, buf, chunk)
			require.NoError(t, err, "chunk %d max %d", chunk, maxRead)
			assert.Equal(t, len(data), n, "chunk %d max %d", chunk, maxRead)
			assert.Equal(t, data, buf, "chunk %d max %d", chunk, maxRead)
		}
	}
}

func TestDrain_ExtraDataDropped(t *testing.T) {
	rx := &fakeRx{data: ramp(100), max: 30}
	buf := make([]complex64, 50)

	n, err := drain(context.Background(), rx, buf, 30)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	assert.Equal(t, ramp(50), buf)
	assert.Equal(t, 100, rx.pos, "stream should be read to the end")
}

func TestDrain_Error(t *testing.T) {
	boom := errors.New("overflow")
	rx := &fakeRx{err: boom}

	_, err := drain(context.Background(), rx, make([]complex64, 10), 10)
	assert.ErrorIs(t, err, boom)
}

func TestReceive_HandsBufferBack(t *testing.T) {
	data := ramp(500)
	rx := &fakeRx{leading: 3, data: data, max: 64}
	buf := make([]complex64, 500)

	res := <-receive(context.Background(), rx, buf, 128)
	require.NoError(t, res.err)
	assert.Equal(t, 500, res.n)
	assert.Equal(t, data, res.buf)
}

// TestReceive_GracefulShutdown tests that the receive task stops and hands
// the buffer back when its context is cancelled before any data arrived.
func TestReceive_GracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	buf := make([]complex64, 10)
	done := receive(ctx, &idleRx{}, buf, 10)

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case res, ok := <-done:
		require.True(t, ok)
		assert.ErrorIs(t, res.err, context.Canceled)
		assert.Equal(t, 0, res.n)
		assert.Len(t, res.buf, 10)
	case <-time.After(5 * time.Second):
		t.Fatal("receive task did not stop within timeout")
	}

	_, ok := <-done
	assert.False(t, ok, "Channel should be closed")
}
