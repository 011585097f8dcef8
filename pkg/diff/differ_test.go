package diff

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/asmdiff/internal/testutil"
	"github.com/sdejongh/asmdiff/pkg/compare"
	"github.com/sdejongh/asmdiff/pkg/filter"
	"github.com/sdejongh/asmdiff/pkg/hash"
	"github.com/sdejongh/asmdiff/pkg/models"
	"github.com/sdejongh/asmdiff/pkg/storage"
)

func buildTree(t *testing.T, files map[string][]byte, dirs ...string) string {
	t.Helper()
	root := t.TempDir()
	for name, data := range files {
		testutil.WriteFile(t, root, name, data)
	}
	for _, d := range dirs {
		testutil.MkdirAll(t, root, d)
	}
	return root
}

func newDiffer(filters *filter.Set, opts ...Option) *Differ {
	return New(filters, compare.NewComparator(hash.NewSelector(), nil), opts...)
}

func collect(t *testing.T, d *Differ, root1, root2 string) []models.DiffEvent {
	t.Helper()
	events, err := Collect(d.Diff(context.Background(), root1, root2))
	require.NoError(t, err)
	return events
}

func lines(events []models.DiffEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.String()
	}
	return out
}

func TestDiffScenario(t *testing.T) {
	root1 := buildTree(t, map[string][]byte{
		"dirX/a.txt": []byte("version 1"),
		"b.dll":      []byte("plain bytes"),
	})
	root2 := buildTree(t, map[string][]byte{
		"dirX/a.txt": []byte("version 2"),
		"c.dll":      []byte("plain bytes"),
	})

	events := collect(t, newDiffer(nil), root1, root2)
	assert.Equal(t, []string{
		"! file : dirX/a.txt",
		"- file : b.dll",
		"+ file : c.dll",
	}, lines(events))
	assert.Equal(t, "content hashes differ", events[0].Reason)
}

func TestDiffIdempotent(t *testing.T) {
	files := map[string][]byte{
		"a.txt":         []byte("a"),
		"bin/Lib.dll":   testutil.BuildAssembly(testutil.DefaultAssembly()),
		"bin/x/y/z.txt": []byte("deep"),
	}
	root := buildTree(t, files, "empty")
	copyRoot := buildTree(t, files, "empty")

	d := newDiffer(nil)
	assert.Empty(t, collect(t, d, root, root))
	assert.Empty(t, collect(t, d, root, copyRoot))
	assert.Empty(t, collect(t, d, root+string(filepath.Separator), copyRoot+string(filepath.Separator)))
}

func TestDiffSymmetric(t *testing.T) {
	root1 := buildTree(t, map[string][]byte{
		"keep.txt":     []byte("same"),
		"change.txt":   []byte("one"),
		"gone.txt":     []byte("x"),
		"old/file.txt": []byte("x"),
		"both/in.txt":  []byte("left"),
	})
	root2 := buildTree(t, map[string][]byte{
		"keep.txt":     []byte("same"),
		"change.txt":   []byte("two"),
		"new.txt":      []byte("x"),
		"fresh/a.txt":  []byte("x"),
		"both/in.txt":  []byte("right"),
		"both/add.txt": []byte("x"),
	})

	d := newDiffer(nil)
	forward := collect(t, d, root1, root2)
	backward := collect(t, d, root2, root1)

	type key struct {
		kind  models.EventKind
		path  string
		isDir bool
	}
	inverted := make(map[key]bool)
	for _, ev := range forward {
		inverted[key{ev.Kind.Inverse(), ev.Path, ev.IsDir}] = true
	}
	got := make(map[key]bool)
	for _, ev := range backward {
		got[key{ev.Kind, ev.Path, ev.IsDir}] = true
	}

	assert.Len(t, forward, 7)
	assert.Equal(t, inverted, got)
}

func TestDiffOrdering(t *testing.T) {
	root1 := buildTree(t, map[string][]byte{
		"gone/f.txt":   []byte("x"),
		"shared/s.txt": []byte("left"),
		"removed.txt":  []byte("x"),
		"mod.txt":      []byte("left"),
	}, "alsoGone")
	root2 := buildTree(t, map[string][]byte{
		"shared/s.txt": []byte("right"),
		"added.txt":    []byte("x"),
		"mod.txt":      []byte("right"),
	}, "new", "another")

	events := collect(t, newDiffer(nil), root1, root2)
	assert.Equal(t, []string{
		"- dir : alsoGone",
		"- dir : gone",
		"+ dir : another",
		"+ dir : new",
		"! file : shared/s.txt",
		"- file : removed.txt",
		"+ file : added.txt",
		"! file : mod.txt",
	}, lines(events))
}

func TestDiffFilters(t *testing.T) {
	root1 := buildTree(t, map[string][]byte{
		"Lib.pdb":     []byte("symbols v1"),
		"sub/App.pdb": []byte("symbols v1"),
		"obj/tmp.txt": []byte("x"),
		"Lib.txt":     []byte("same"),
	})
	root2 := buildTree(t, map[string][]byte{
		"Lib.pdb":     []byte("symbols v2"),
		"sub/App.pdb": []byte("symbols v2"),
		"Lib.txt":     []byte("same"),
		"New.pdb":     []byte("x"),
	})

	t.Run("Unfiltered", func(t *testing.T) {
		events := collect(t, newDiffer(nil), root1, root2)
		assert.Len(t, events, 4)
	})

	t.Run("ExcludePDB", func(t *testing.T) {
		set := filter.MustCompile(filter.ParseList("-*.pdb"))
		d := newDiffer(set)
		events := collect(t, d, root1, root2)
		assert.Equal(t, []string{"- dir : obj"}, lines(events))
		assert.Equal(t, int64(5), d.Stats().Filtered)
	})

	t.Run("ExcludePDBAndObj", func(t *testing.T) {
		set := filter.MustCompile(filter.ParseList("-*.pdb;-obj"))
		assert.Empty(t, collect(t, newDiffer(set), root1, root2))
	})

	t.Run("FirstRulePolicy", func(t *testing.T) {
		// only "-obj" is consulted, so the pdb differences remain
		set := filter.MustCompile([]string{"-obj", "-*.pdb"}, filter.WithPolicy(filter.FirstRule))
		events := collect(t, newDiffer(set), root1, root2)
		assert.Equal(t, []string{
			"! file : sub/App.pdb",
			"+ file : New.pdb",
			"! file : Lib.pdb",
		}, lines(events))
	})
}

func TestDiffCaseInsensitive(t *testing.T) {
	root1 := buildTree(t, map[string][]byte{
		"Bin/Lib.DLL": []byte("same"),
		"Bin/App.txt": []byte("one"),
		"README":      []byte("same"),
	})
	root2 := buildTree(t, map[string][]byte{
		"bin/lib.dll": []byte("same"),
		"bin/app.TXT": []byte("two"),
		"readme":      []byte("same"),
	})

	events := collect(t, newDiffer(nil), root1, root2)
	assert.Equal(t, []string{"! file : bin/app.TXT"}, lines(events))
}

func TestDiffCaseOnlyDuplicates(t *testing.T) {
	root1 := buildTree(t, map[string][]byte{
		"A.txt": []byte("x"),
		"a.txt": []byte("y"),
	})
	entries, err := os.ReadDir(root1)
	require.NoError(t, err)
	if len(entries) != 2 {
		t.Skip("filesystem is case-insensitive")
	}
	root2 := buildTree(t, map[string][]byte{"a.txt": []byte("x")})

	d := newDiffer(nil)
	events := collect(t, d, root1, root2)
	assert.Empty(t, lines(events), "only A.txt, first in name order, is compared")
	assert.Equal(t, int64(1), d.Stats().LeftFiles)
}

func TestDiffManagedAssemblies(t *testing.T) {
	base := testutil.DefaultAssembly()
	rebuilt := testutil.DefaultAssembly()
	rebuilt.Timestamp = 0x66000000
	rebuilt.DebugTimestamp = 0x66000000
	rebuilt.MVID = [16]byte{9, 9, 9}
	rebuilt.PDBGuid = [16]byte{7, 7, 7}
	changed := testutil.DefaultAssembly()
	changed.IL = []byte{0x16, 0x2A}

	root1 := buildTree(t, map[string][]byte{
		"Rebuilt.dll": testutil.BuildAssembly(base),
		"Changed.dll": testutil.BuildAssembly(base),
	})
	root2 := buildTree(t, map[string][]byte{
		"Rebuilt.dll": testutil.BuildAssembly(rebuilt),
		"Changed.dll": testutil.BuildAssembly(changed),
	})

	t.Run("NoiseTolerant", func(t *testing.T) {
		d := newDiffer(nil)
		events := collect(t, d, root1, root2)
		assert.Equal(t, []string{"! file : Changed.dll"}, lines(events))
		assert.Equal(t, int64(2), d.Stats().ManagedCompared)
	})

	t.Run("Strict", func(t *testing.T) {
		d := New(nil, compare.NewComparator(hash.NewSelector(hash.WithManagedHashing(false)), nil))
		events := collect(t, d, root1, root2)
		assert.Equal(t, []string{"! file : Changed.dll", "! file : Rebuilt.dll"}, lines(events))
	})
}

func TestDiffWorkersKeepOrder(t *testing.T) {
	left := make(map[string][]byte)
	right := make(map[string][]byte)
	for i := 0; i < 40; i++ {
		name := fmt.Sprintf("d%d/f%02d.txt", i%3, i)
		left[name] = []byte(name)
		if i%4 == 0 {
			right[name] = []byte(name + " changed")
		} else {
			right[name] = []byte(name)
		}
	}
	root1 := buildTree(t, left)
	root2 := buildTree(t, right)

	sequential := collect(t, newDiffer(nil), root1, root2)
	parallel := collect(t, newDiffer(nil, WithWorkers(8)), root1, root2)

	assert.Len(t, sequential, 10)
	assert.Equal(t, sequential, parallel)
}

func TestDiffUnreadableFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}

	root1 := buildTree(t, map[string][]byte{"data.bin": []byte("x")})
	root2 := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(root2, "missing"), filepath.Join(root2, "data.bin")))

	d := newDiffer(nil)
	events := collect(t, d, root1, root2)
	require.Len(t, events, 1)
	assert.Equal(t, models.Modified, events[0].Kind)
	assert.Equal(t, "unreadable", events[0].Reason)
	assert.Equal(t, int64(1), d.Stats().Unreadable)
}

func TestDiffSelfWithDirectoryLinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}

	root := buildTree(t, map[string][]byte{"real/a.txt": []byte("a")})
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "link")))
	require.NoError(t, os.Symlink(root, filepath.Join(root, "real", "top")))

	d := newDiffer(nil)
	events := collect(t, d, root, root)
	assert.Empty(t, lines(events))

	stats := d.Stats()
	assert.Zero(t, stats.Unreadable)
	assert.Equal(t, int64(2), stats.FilesCompared, "real/a.txt and link/a.txt")
}

// failingBackend fails to list one directory
type failingBackend struct {
	storage.Backend
	failOn string
}

func (b *failingBackend) ReadDir(ctx context.Context, rel string) ([]models.FileEntry, []models.FileEntry, error) {
	if rel == b.failOn {
		return nil, nil, &storage.FilesystemError{Op: "list", Path: rel, Err: os.ErrPermission}
	}
	return b.Backend.ReadDir(ctx, rel)
}

func TestDiffListingError(t *testing.T) {
	root1 := buildTree(t, map[string][]byte{"sub/a.txt": []byte("x"), "z.txt": []byte("x")})
	root2 := buildTree(t, map[string][]byte{"sub/a.txt": []byte("x")})

	t.Run("Subdirectory", func(t *testing.T) {
		d := newDiffer(nil, WithOpener(func(root string) (storage.Backend, error) {
			local, err := storage.NewLocal(root)
			if err != nil {
				return nil, err
			}
			return &failingBackend{Backend: local, failOn: "sub"}, nil
		}))

		events, err := Collect(d.Diff(context.Background(), root1, root2))
		var fsErr *storage.FilesystemError
		require.True(t, errors.As(err, &fsErr))
		assert.True(t, errors.Is(err, os.ErrPermission))
		assert.Empty(t, events)
	})

	t.Run("MissingRoot", func(t *testing.T) {
		_, err := Collect(newDiffer(nil).Diff(context.Background(), root1, filepath.Join(root2, "nope")))
		var fsErr *storage.FilesystemError
		assert.True(t, errors.As(err, &fsErr))
	})
}

func TestDiffEarlyStop(t *testing.T) {
	root1 := buildTree(t, map[string][]byte{"a.txt": []byte("x"), "b.txt": []byte("x"), "c.txt": []byte("x")})
	root2 := t.TempDir()

	var seen []string
	for ev, err := range newDiffer(nil).Diff(context.Background(), root1, root2) {
		require.NoError(t, err)
		seen = append(seen, ev.Path)
		break
	}
	assert.Equal(t, []string{"a.txt"}, seen)
}

func TestWalkCallbackError(t *testing.T) {
	root1 := buildTree(t, map[string][]byte{"a.txt": []byte("x"), "b.txt": []byte("x")})
	root2 := t.TempDir()

	stop := errors.New("stop here")
	calls := 0
	err := newDiffer(nil).Walk(context.Background(), root1, root2, func(models.DiffEvent) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestDiffCancelled(t *testing.T) {
	root1 := buildTree(t, map[string][]byte{"a.txt": []byte("x")})
	root2 := buildTree(t, map[string][]byte{"a.txt": []byte("y")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(newDiffer(nil).Diff(ctx, root1, root2))
	assert.ErrorIs(t, err, context.Canceled)
}

// cancellingComparator cancels the walk while a pair is being compared
type cancellingComparator struct {
	cancel context.CancelFunc
}

func (c *cancellingComparator) Compare(ctx context.Context, a, b string) *compare.Comparison {
	c.cancel()
	return &compare.Comparison{LeftPath: a, RightPath: b, Result: compare.Error, Reason: "hashing failed", Error: context.Canceled}
}

func TestDiffCancelledDuringComparison(t *testing.T) {
	root1 := buildTree(t, map[string][]byte{"a.txt": []byte("x"), "b.txt": []byte("x")})
	root2 := buildTree(t, map[string][]byte{"a.txt": []byte("x"), "b.txt": []byte("x")})

	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("Workers%d", workers), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			d := New(nil, &cancellingComparator{cancel: cancel}, WithWorkers(workers))
			var events []models.DiffEvent
			err := d.Walk(ctx, root1, root2, func(ev models.DiffEvent) error {
				events = append(events, ev)
				return nil
			})

			assert.ErrorIs(t, err, context.Canceled)
			assert.Empty(t, events)
			assert.Zero(t, d.Stats().Unreadable)
		})
	}
}

func TestDiffStats(t *testing.T) {
	root1 := buildTree(t, map[string][]byte{
		"a.txt":     []byte("x"),
		"b.txt":     []byte("x"),
		"d/c.txt":   []byte("x"),
		"skip.pdb":  []byte("x"),
		"d/old.txt": []byte("x"),
	})
	root2 := buildTree(t, map[string][]byte{
		"a.txt":   []byte("x"),
		"b.txt":   []byte("y"),
		"d/c.txt": []byte("x"),
		"new.txt": []byte("x"),
	})

	d := newDiffer(filter.MustCompile([]string{"-*.pdb"}))
	events := collect(t, d, root1, root2)

	stats := d.Stats()
	assert.Equal(t, int64(len(events)), stats.Differences())
	assert.Equal(t, int64(1), stats.Added)
	assert.Equal(t, int64(1), stats.Removed)
	assert.Equal(t, int64(1), stats.Modified)
	assert.Equal(t, int64(1), stats.Filtered)
	assert.Equal(t, int64(3), stats.FilesCompared)
	assert.Equal(t, int64(1), stats.LeftDirs)
	assert.Equal(t, int64(4), stats.LeftFiles)
	assert.Equal(t, int64(4), stats.RightFiles)

	// stats restart with every walk
	collect(t, d, root1, root1)
	assert.Zero(t, d.Stats().Differences())
	assert.True(t, strings.HasPrefix(events[0].Path, "d/"))
}

func TestDiffProgress(t *testing.T) {
	root1 := buildTree(t, map[string][]byte{"a.txt": []byte("x"), "s/b.txt": []byte("x"), "gone.txt": nil})
	root2 := buildTree(t, map[string][]byte{"a.txt": []byte("x"), "s/b.txt": []byte("y")})

	var mu sync.Mutex
	var seen []string
	d := newDiffer(nil, WithWorkers(2), WithProgress(func(path string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, path)
	}))
	collect(t, d, root1, root2)

	assert.ElementsMatch(t, []string{"a.txt", "s/b.txt"}, seen)
}
