// Package diff walks two directory trees in lockstep and reports the
// structural and content differences between them.
//
// Events for one directory level are produced in a fixed order:
//
//  1. directories only under the first root (Removed)
//  2. directories only under the second root (Added)
//  3. events of every directory present under both roots, recursively
//  4. files only under the first root (Removed)
//  5. files only under the second root (Added)
//  6. files present under both roots whose content differs (Modified)
//
// Entry names are matched across roots case-insensitively. Removed events
// carry first-root paths; Added and Modified events carry second-root paths.
//
// When one directory holds several entries whose names differ only in case,
// as a case-sensitive filesystem allows, only the first in name order takes
// part in the comparison. The others produce no events; they are reported
// at debug level.
package diff

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/sdejongh/asmdiff/internal/platform"
	"github.com/sdejongh/asmdiff/pkg/compare"
	"github.com/sdejongh/asmdiff/pkg/filter"
	"github.com/sdejongh/asmdiff/pkg/hash"
	"github.com/sdejongh/asmdiff/pkg/logging"
	"github.com/sdejongh/asmdiff/pkg/models"
	"github.com/sdejongh/asmdiff/pkg/storage"
)

// FileComparator decides whether two files have equivalent content
type FileComparator interface {
	Compare(ctx context.Context, a, b string) *compare.Comparison
}

// Opener opens one root for listing
type Opener func(root string) (storage.Backend, error)

// errStopped ends a walk when the consumer of Diff stops ranging
var errStopped = errors.New("diff: iteration stopped")

// Differ compares two directory trees
type Differ struct {
	filters  *filter.Set
	cmp      FileComparator
	workers  int
	logger   logging.Logger
	open     Opener
	progress func(path string)

	stats counters
}

type counters struct {
	leftDirs        atomic.Int64
	leftFiles       atomic.Int64
	rightDirs       atomic.Int64
	rightFiles      atomic.Int64
	filtered        atomic.Int64
	filesCompared   atomic.Int64
	managedCompared atomic.Int64
	unreadable      atomic.Int64
	added           atomic.Int64
	removed         atomic.Int64
	modified        atomic.Int64
}

func (c *counters) reset() {
	for _, v := range []*atomic.Int64{
		&c.leftDirs, &c.leftFiles, &c.rightDirs, &c.rightFiles, &c.filtered,
		&c.filesCompared, &c.managedCompared, &c.unreadable,
		&c.added, &c.removed, &c.modified,
	} {
		v.Store(0)
	}
}

// Option configures a Differ
type Option func(*Differ)

// WithWorkers lets up to n matched file pairs of one directory level be
// compared concurrently. Event order is unaffected.
func WithWorkers(n int) Option {
	return func(d *Differ) {
		d.workers = n
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(d *Differ) {
		d.logger = logger
	}
}

// WithOpener replaces the local filesystem backend
func WithOpener(open Opener) Option {
	return func(d *Differ) {
		d.open = open
	}
}

// WithProgress registers a callback invoked after every file comparison with
// the second-root relative path. It may be called from several goroutines.
func WithProgress(fn func(path string)) Option {
	return func(d *Differ) {
		d.progress = fn
	}
}

// New creates a Differ. A nil filter set includes everything.
func New(filters *filter.Set, cmp FileComparator, opts ...Option) *Differ {
	d := &Differ{
		filters: filters,
		cmp:     cmp,
		workers: 1,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.workers < 1 {
		d.workers = 1
	}
	d.logger = logging.OrNull(d.logger)
	if d.open == nil {
		logger := d.logger
		d.open = func(root string) (storage.Backend, error) {
			return storage.NewLocal(root, storage.WithLogger(logger))
		}
	}
	return d
}

// Diff returns a lazy sequence of the differences between root1 and root2.
// A failure is yielded once as the final element with a zero event.
func (d *Differ) Diff(ctx context.Context, root1, root2 string) iter.Seq2[models.DiffEvent, error] {
	return func(yield func(models.DiffEvent, error) bool) {
		err := d.Walk(ctx, root1, root2, func(ev models.DiffEvent) error {
			if !yield(ev, nil) {
				return errStopped
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopped) {
			yield(models.DiffEvent{}, err)
		}
	}
}

// Walk calls fn for every difference between root1 and root2 in order.
// An error returned by fn ends the walk and is returned unchanged.
func (d *Differ) Walk(ctx context.Context, root1, root2 string, fn func(models.DiffEvent) error) error {
	d.stats.reset()

	left, err := d.open(root1)
	if err != nil {
		return err
	}
	defer left.Close()

	right, err := d.open(root2)
	if err != nil {
		return err
	}
	defer right.Close()

	d.logger.Debug(ctx, "starting tree comparison", logging.Fields{
		"root1":   left.Root(),
		"root2":   right.Root(),
		"filters": d.filters.String(),
		"workers": d.workers,
	})

	w := &walker{Differ: d, left: left, right: right, emit: fn}
	return w.level(ctx, "", "")
}

// Stats returns the counters of the last walk
func (d *Differ) Stats() models.Statistics {
	return models.Statistics{
		LeftDirs:        d.stats.leftDirs.Load(),
		LeftFiles:       d.stats.leftFiles.Load(),
		RightDirs:       d.stats.rightDirs.Load(),
		RightFiles:      d.stats.rightFiles.Load(),
		Filtered:        d.stats.filtered.Load(),
		FilesCompared:   d.stats.filesCompared.Load(),
		ManagedCompared: d.stats.managedCompared.Load(),
		Unreadable:      d.stats.unreadable.Load(),
		Added:           d.stats.added.Load(),
		Removed:         d.stats.removed.Load(),
		Modified:        d.stats.modified.Load(),
	}
}

// Collect drains a sequence into a slice, stopping at the first error
func Collect(seq iter.Seq2[models.DiffEvent, error]) ([]models.DiffEvent, error) {
	var events []models.DiffEvent
	for ev, err := range seq {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

type walker struct {
	*Differ
	left  storage.Backend
	right storage.Backend
	emit  func(models.DiffEvent) error
}

type pair struct {
	left  models.FileEntry
	right models.FileEntry
}

func (w *walker) level(ctx context.Context, rel1, rel2 string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	leftDirs, leftFiles, err := w.left.ReadDir(ctx, rel1)
	if err != nil {
		return err
	}
	rightDirs, rightFiles, err := w.right.ReadDir(ctx, rel2)
	if err != nil {
		return err
	}

	leftDirs = w.keep(ctx, leftDirs)
	leftFiles = w.keep(ctx, leftFiles)
	rightDirs = w.keep(ctx, rightDirs)
	rightFiles = w.keep(ctx, rightFiles)

	w.stats.leftDirs.Add(int64(len(leftDirs)))
	w.stats.leftFiles.Add(int64(len(leftFiles)))
	w.stats.rightDirs.Add(int64(len(rightDirs)))
	w.stats.rightFiles.Add(int64(len(rightFiles)))

	leftDirIndex := index(leftDirs)
	rightDirIndex := index(rightDirs)

	for _, e := range leftDirs {
		if _, ok := rightDirIndex[platform.FoldKey(e.Name)]; !ok {
			if err := w.send(models.DiffEvent{Kind: models.Removed, Path: e.RelativePath, IsDir: true}); err != nil {
				return err
			}
		}
	}
	for _, e := range rightDirs {
		if _, ok := leftDirIndex[platform.FoldKey(e.Name)]; !ok {
			if err := w.send(models.DiffEvent{Kind: models.Added, Path: e.RelativePath, IsDir: true}); err != nil {
				return err
			}
		}
	}
	for _, e := range rightDirs {
		if match, ok := leftDirIndex[platform.FoldKey(e.Name)]; ok {
			if err := w.level(ctx, match.RelativePath, e.RelativePath); err != nil {
				return err
			}
		}
	}

	leftFileIndex := index(leftFiles)
	rightFileIndex := index(rightFiles)

	for _, e := range leftFiles {
		if _, ok := rightFileIndex[platform.FoldKey(e.Name)]; !ok {
			if err := w.send(models.DiffEvent{Kind: models.Removed, Path: e.RelativePath}); err != nil {
				return err
			}
		}
	}

	var pairs []pair
	for _, e := range rightFiles {
		match, ok := leftFileIndex[platform.FoldKey(e.Name)]
		if !ok {
			if err := w.send(models.DiffEvent{Kind: models.Added, Path: e.RelativePath}); err != nil {
				return err
			}
			continue
		}
		pairs = append(pairs, pair{left: match, right: e})
	}

	if w.workers > 1 && len(pairs) > 1 {
		return w.compareParallel(ctx, pairs)
	}

	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := w.compare(ctx, p)
		// a comparison cut short by cancellation is not a difference
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.report(c); err != nil {
			return err
		}
	}
	return nil
}

// compareParallel compares pairs with a bounded pool, then reports them in order
func (w *walker) compareParallel(ctx context.Context, pairs []pair) error {
	results := make([]*compare.Comparison, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for i, p := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = w.compare(gctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, c := range results {
		if err := w.report(c); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) compare(ctx context.Context, p pair) *compare.Comparison {
	c := w.cmp.Compare(ctx, p.left.AbsolutePath, p.right.AbsolutePath)
	// the comparator works on absolute paths; events use the right-side relative path
	c.RightPath = p.right.RelativePath

	w.stats.filesCompared.Add(1)
	if w.progress != nil {
		w.progress(p.right.RelativePath)
	}
	if c.LeftStrategy == hash.KindManagedAssembly && c.RightStrategy == hash.KindManagedAssembly {
		w.stats.managedCompared.Add(1)
	}
	if c.Result == compare.Error && ctx.Err() == nil {
		w.stats.unreadable.Add(1)
		w.logger.Warn(ctx, "treating unreadable file as modified", logging.Fields{
			"path":   p.right.RelativePath,
			"reason": c.Reason,
		})
	}
	return c
}

func (w *walker) report(c *compare.Comparison) error {
	if c.Result == compare.Same {
		return nil
	}
	return w.send(models.DiffEvent{Kind: models.Modified, Path: c.RightPath, Reason: c.Reason})
}

func (w *walker) send(ev models.DiffEvent) error {
	switch ev.Kind {
	case models.Added:
		w.stats.added.Add(1)
	case models.Removed:
		w.stats.removed.Add(1)
	case models.Modified:
		w.stats.modified.Add(1)
	}
	return w.emit(ev)
}

// keep drops filtered entries and later entries whose folded name repeats an
// earlier one
func (w *walker) keep(ctx context.Context, entries []models.FileEntry) []models.FileEntry {
	out := entries[:0:0]
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if !w.filters.ShouldInclude(e.RelativePath) {
			w.stats.filtered.Add(1)
			continue
		}
		key := platform.FoldKey(e.Name)
		if _, dup := seen[key]; dup {
			w.logger.Debug(ctx, "ignoring entry whose name differs only in case", logging.Fields{
				"path": e.RelativePath,
			})
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

func index(entries []models.FileEntry) map[string]models.FileEntry {
	m := make(map[string]models.FileEntry, len(entries))
	for _, e := range entries {
		m[platform.FoldKey(e.Name)] = e
	}
	return m
}
