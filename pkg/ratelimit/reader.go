// Package ratelimit caps the combined read throughput of concurrent hashers.
package ratelimit

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// minBurst keeps small limits from degrading into tiny reads
const minBurst = 64 * 1024

// Limiter is a byte budget shared by every reader wrapped with it
type Limiter struct {
	bytesPerSecond int64
	burst          int
	lim            *rate.Limiter
}

// NewLimiter creates a limiter allowing bytesPerSecond bytes per second.
// A non-positive rate means no limiting and returns nil.
func NewLimiter(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	// One second of data, at least 64KB
	burst := bytesPerSecond
	if burst < minBurst {
		burst = minBurst
	}

	return &Limiter{
		bytesPerSecond: bytesPerSecond,
		burst:          int(burst),
		lim:            rate.NewLimiter(rate.Limit(bytesPerSecond), int(burst)),
	}
}

// BytesPerSecond returns the configured rate
func (l *Limiter) BytesPerSecond() int64 {
	if l == nil {
		return 0
	}
	return l.bytesPerSecond
}

// ParseRate parses a human byte rate such as "20MiB" or "500KB".
// An empty string or "0" means unlimited.
func ParseRate(s string) (int64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "/s"))
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid read rate %q: %w", s, err)
	}
	return int64(n), nil
}

// Reader wraps an io.Reader with bandwidth limiting
type Reader struct {
	reader  io.Reader
	limiter *Limiter
	ctx     context.Context
}

// NewReader wraps reader; a nil limiter returns reader unchanged
func NewReader(ctx context.Context, reader io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return reader
	}
	return &Reader{
		reader:  reader,
		limiter: limiter,
		ctx:     ctx,
	}
}

// Read reads at most one burst and then waits until the bytes are paid for
func (r *Reader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}

	if len(p) > r.limiter.burst {
		p = p[:r.limiter.burst]
	}

	n, err := r.reader.Read(p)
	if n > 0 {
		if werr := r.limiter.lim.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
