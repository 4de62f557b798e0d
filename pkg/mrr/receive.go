package mrr

import (
	"context"
	"fmt"

	"github.com/itohio/sdmrr/pkg/sdr"
)

// capture is the receive task's result. buf is handed back to the caller
// only through this value.
type capture struct {
	buf []complex64
	n   int
	err error
}

// receive moves buf into a new receive task and returns the channel on which
// the task hands it back once the stream has ended, failed or ctx is done.
// The caller must not touch buf until it has been received from the channel.
func receive(ctx context.Context, rx sdr.RxStreamer, buf []complex64, chunk int) <-chan capture {
	done := make(chan capture, 1)
	go func() {
		defer close(done)
		n, err := drain(ctx, rx, buf, chunk)
		done <- capture{buf: buf, n: n, err: err}
	}()
	return done
}

// drain polls rx until it has seen data followed by an empty read. Empty
// reads before the first data are discarded.
func drain(ctx context.Context, rx sdr.RxStreamer, buf []complex64, chunk int) (int, error) {
	if chunk <= 0 {
		chunk = len(buf)
	}
	recv := make([]complex64, max(chunk, 1))

	waiting := true
	i := 0
	for {
		if err := ctx.Err(); err != nil {
			return i, err
		}

		n, err := rx.Recv(recv)
		if err != nil {
			return i, fmt.Errorf("receive failed: %w", err)
		}
		if n == 0 {
			if waiting {
				continue
			}
			return i, nil
		}
		if waiting {
			waiting = false
			i = 0
		}
		if i < len(buf) {
			i += copy(buf[i:], recv[:n])
		}
	}
}
