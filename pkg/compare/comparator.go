// Package compare decides whether two files have equivalent content.
package compare

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/sdejongh/asmdiff/pkg/hash"
	"github.com/sdejongh/asmdiff/pkg/logging"
)

// Result represents the outcome of comparing two files
type Result string

const (
	// Same indicates files are equivalent
	Same Result = "same"
	// Different indicates files differ
	Different Result = "different"
	// Error indicates comparison failed
	Error Result = "error"
)

// Comparison holds the result of comparing two files
type Comparison struct {
	LeftPath      string
	RightPath     string
	Result        Result
	Reason        string
	LeftStrategy  hash.Kind
	RightStrategy hash.Kind
	Error         error
}

// Match reports whether the files were found equivalent
func (c *Comparison) Match() bool {
	return c.Result == Same
}

// Comparator compares two files using the strategy selected for each side
type Comparator struct {
	selector *hash.Selector
	logger   logging.Logger
}

// NewComparator creates a comparator
func NewComparator(selector *hash.Selector, logger logging.Logger) *Comparator {
	if selector == nil {
		selector = hash.NewSelector(hash.WithLogger(logger))
	}
	return &Comparator{
		selector: selector,
		logger:   logging.OrNull(logger),
	}
}

// FilesMatch reports whether a and b are equivalent. Unreadable files never
// match.
func (c *Comparator) FilesMatch(ctx context.Context, a, b string) bool {
	return c.Compare(ctx, a, b).Match()
}

// Compare compares the files at a and b
func (c *Comparator) Compare(ctx context.Context, a, b string) *Comparison {
	left := c.selector.For(a)
	right := c.selector.For(b)

	comp := &Comparison{
		LeftPath:      a,
		RightPath:     b,
		LeftStrategy:  left.Name(),
		RightStrategy: right.Name(),
	}

	// Quick check: byte-for-byte hashes of different sizes cannot match
	if left.Name() == hash.KindWholeFile && right.Name() == hash.KindWholeFile {
		leftInfo, err := os.Stat(a)
		if err != nil {
			return c.failed(ctx, comp, "failed to stat left file", &hash.UnreadableFileError{Path: a, Err: err})
		}
		rightInfo, err := os.Stat(b)
		if err != nil {
			return c.failed(ctx, comp, "failed to stat right file", &hash.UnreadableFileError{Path: b, Err: err})
		}
		if leftInfo.Size() != rightInfo.Size() {
			comp.Result = Different
			comp.Reason = "file sizes differ"
			return comp
		}
	}

	// Compute both hashes in parallel
	var leftSum, rightSum hash.Value
	var g errgroup.Group
	g.Go(func() error {
		var err error
		leftSum, err = left.Hash(ctx, a)
		return err
	})
	g.Go(func() error {
		var err error
		rightSum, err = right.Hash(ctx, b)
		return err
	})
	if err := g.Wait(); err != nil {
		return c.failed(ctx, comp, "hashing failed", err)
	}

	if left.Name() != right.Name() {
		comp.Result = Different
		comp.Reason = "file formats differ"
		return comp
	}

	if leftSum != rightSum {
		comp.Result = Different
		comp.Reason = "content hashes differ"
		c.logger.Debug(ctx, "content hashes differ", logging.Fields{
			"left":       a,
			"right":      b,
			"strategy":   string(left.Name()),
			"left_hash":  leftSum.Short(),
			"right_hash": rightSum.Short(),
		})
		return comp
	}

	comp.Result = Same
	comp.Reason = "content hashes match"
	return comp
}

func (c *Comparator) failed(ctx context.Context, comp *Comparison, reason string, err error) *Comparison {
	comp.Result = Error
	comp.Reason = reason
	comp.Error = err

	var unreadable *hash.UnreadableFileError
	if errors.As(err, &unreadable) {
		comp.Reason = "unreadable"
	}

	c.logger.Warn(ctx, "file comparison failed", logging.Fields{
		"left":  comp.LeftPath,
		"right": comp.RightPath,
		"error": err.Error(),
	})
	return comp
}
