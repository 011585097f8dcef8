package hash

import (
	"github.com/sdejongh/asmdiff/pkg/logging"
	"github.com/sdejongh/asmdiff/pkg/pe"
	"github.com/sdejongh/asmdiff/pkg/ratelimit"
)

// Selector picks the hashing strategy for a path
type Selector struct {
	whole          *WholeFile
	managed        *ManagedAssembly
	managedHashing bool
	isManaged      func(path string) bool
}

// SelectorOption configures a Selector
type SelectorOption func(*selectorConfig)

type selectorConfig struct {
	bufferSize     int
	managedHashing bool
	logger         logging.Logger
	limiter        *ratelimit.Limiter
}

// WithBufferSize sets the read buffer size of the whole-file strategy
func WithBufferSize(size int) SelectorOption {
	return func(c *selectorConfig) {
		c.bufferSize = size
	}
}

// WithManagedHashing enables or disables noise-tolerant hashing of managed
// images. When disabled every file is hashed byte for byte.
func WithManagedHashing(enabled bool) SelectorOption {
	return func(c *selectorConfig) {
		c.managedHashing = enabled
	}
}

// WithReadLimit caps the combined read rate of both strategies.
// A nil limiter reads at full speed.
func WithReadLimit(limiter *ratelimit.Limiter) SelectorOption {
	return func(c *selectorConfig) {
		c.limiter = limiter
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) SelectorOption {
	return func(c *selectorConfig) {
		c.logger = logger
	}
}

// NewSelector creates a selector; managed hashing is enabled by default
func NewSelector(opts ...SelectorOption) *Selector {
	cfg := selectorConfig{
		bufferSize:     64 * 1024,
		managedHashing: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Selector{
		whole:          NewWholeFile(cfg.bufferSize, cfg.limiter),
		managed:        NewManagedAssembly(cfg.logger, cfg.limiter),
		managedHashing: cfg.managedHashing,
		isManaged:      pe.IsManagedBinary,
	}
}

// For returns the strategy for path
func (s *Selector) For(path string) Strategy {
	if s.managedHashing && s.isManaged(path) {
		return s.managed
	}
	return s.whole
}

// BytesRead returns the bytes hashed by all strategies
func (s *Selector) BytesRead() int64 {
	return s.whole.BytesRead() + s.managed.BytesRead()
}
