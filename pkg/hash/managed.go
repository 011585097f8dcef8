package hash

import (
	"context"
	"crypto/sha256"
	"io"
	"os"
	"sync/atomic"

	"github.com/sdejongh/asmdiff/pkg/logging"
	"github.com/sdejongh/asmdiff/pkg/pe"
	"github.com/sdejongh/asmdiff/pkg/ratelimit"
)

// ManagedAssembly hashes a CLI image with rebuild noise zeroed: timestamps,
// checksum, signatures, debug records and the module version id. IL, metadata
// tables, heaps and resources all contribute to the digest.
//
// Images that cannot be parsed far enough to mask are hashed as-is.
type ManagedAssembly struct {
	logger    logging.Logger
	limiter   *ratelimit.Limiter
	bytesRead atomic.Int64
}

// NewManagedAssembly creates a managed-assembly strategy
func NewManagedAssembly(logger logging.Logger, limiter *ratelimit.Limiter) *ManagedAssembly {
	return &ManagedAssembly{logger: logging.OrNull(logger), limiter: limiter}
}

// Hash reads the image, masks noise ranges and digests the result
func (m *ManagedAssembly) Hash(ctx context.Context, path string) (Value, error) {
	if err := ctx.Err(); err != nil {
		return Value{}, err
	}

	data, err := m.read(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return Value{}, ctx.Err()
		}
		return Value{}, &UnreadableFileError{Path: path, Err: err}
	}
	m.bytesRead.Add(int64(len(data)))

	ranges, err := pe.NoiseRanges(data)
	if err != nil {
		m.logger.Debug(ctx, "hashing managed image without masking", logging.Fields{
			"path":  path,
			"error": err.Error(),
		})
	} else {
		pe.Mask(data, ranges)
	}

	return Value{Kind: KindManagedAssembly, Sum: sha256.Sum256(data)}, nil
}

func (m *ManagedAssembly) read(ctx context.Context, path string) ([]byte, error) {
	if m.limiter == nil {
		return os.ReadFile(path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(ratelimit.NewReader(ctx, file, m.limiter))
}

// BytesRead returns the number of bytes hashed so far
func (m *ManagedAssembly) BytesRead() int64 {
	return m.bytesRead.Load()
}

// Name returns the strategy name
func (m *ManagedAssembly) Name() Kind {
	return KindManagedAssembly
}
