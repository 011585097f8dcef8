package hash

import (
	"context"
	"crypto/sha256"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sdejongh/asmdiff/pkg/ratelimit"
)

const minBufferSize = 4096

// WholeFile hashes every byte of a file with SHA-256
type WholeFile struct {
	bufferPool *sync.Pool
	limiter    *ratelimit.Limiter
	bytesRead  atomic.Int64
}

// NewWholeFile creates a whole-file strategy reading with bufferSize chunks.
// A nil limiter reads at full speed.
func NewWholeFile(bufferSize int, limiter *ratelimit.Limiter) *WholeFile {
	if bufferSize < minBufferSize {
		bufferSize = minBufferSize
	}
	return &WholeFile{
		limiter: limiter,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, bufferSize)
				return &buf
			},
		},
	}
}

// Hash streams the file through SHA-256
func (w *WholeFile) Hash(ctx context.Context, path string) (Value, error) {
	file, err := os.Open(path)
	if err != nil {
		return Value{}, &UnreadableFileError{Path: path, Err: err}
	}
	defer file.Close()

	reader := ratelimit.NewReader(ctx, file, w.limiter)
	hasher := sha256.New()

	bufPtr := w.bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer w.bufferPool.Put(bufPtr)

	for {
		select {
		case <-ctx.Done():
			return Value{}, ctx.Err()
		default:
		}

		n, err := reader.Read(buffer)
		if n > 0 {
			hasher.Write(buffer[:n])
			w.bytesRead.Add(int64(n))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return Value{}, ctx.Err()
			}
			return Value{}, &UnreadableFileError{Path: path, Err: err}
		}
	}

	v := Value{Kind: KindWholeFile}
	copy(v.Sum[:], hasher.Sum(nil))
	return v, nil
}

// BytesRead returns the number of bytes hashed so far
func (w *WholeFile) BytesRead() int64 {
	return w.bytesRead.Load()
}

// Name returns the strategy name
func (w *WholeFile) Name() Kind {
	return KindWholeFile
}
