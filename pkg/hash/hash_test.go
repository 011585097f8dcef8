package hash

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/asmdiff/internal/testutil"
	"github.com/sdejongh/asmdiff/pkg/ratelimit"
)

func TestWholeFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	w := NewWholeFile(1024, nil)

	a := testutil.WriteFile(t, dir, "a.txt", []byte("hello world"))
	b := testutil.WriteFile(t, dir, "b.txt", []byte("hello world"))
	c := testutil.WriteFile(t, dir, "c.txt", []byte("hello there"))

	va, err := w.Hash(ctx, a)
	require.NoError(t, err)
	vb, err := w.Hash(ctx, b)
	require.NoError(t, err)
	vc, err := w.Hash(ctx, c)
	require.NoError(t, err)

	assert.Equal(t, va, vb)
	assert.NotEqual(t, va, vc)
	assert.Equal(t, KindWholeFile, va.Kind)
	assert.Equal(t, int64(33), w.BytesRead())
	assert.Len(t, va.Short(), 12)
	assert.Contains(t, va.String(), "whole-file:")
}

func TestWholeFileLargerThanBuffer(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte("0123456789abcdef"), 4096)
	a := testutil.WriteFile(t, dir, "a.bin", data)

	changed := bytes.Clone(data)
	changed[len(changed)-1] = 'X'
	b := testutil.WriteFile(t, dir, "b.bin", changed)

	w := NewWholeFile(minBufferSize, nil)
	va, err := w.Hash(context.Background(), a)
	require.NoError(t, err)
	vb, err := w.Hash(context.Background(), b)
	require.NoError(t, err)
	assert.NotEqual(t, va, vb, "a change in the last chunk must be detected")
}

func TestWholeFileUnreadable(t *testing.T) {
	w := NewWholeFile(0, nil)
	path := filepath.Join(t.TempDir(), "missing.txt")

	_, err := w.Hash(context.Background(), path)
	require.Error(t, err)

	var unreadable *UnreadableFileError
	require.True(t, errors.As(err, &unreadable))
	assert.Equal(t, path, unreadable.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWholeFileCancelled(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "a.txt", []byte("data"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWholeFile(0, nil).Hash(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestManagedAssemblyIgnoresRebuildNoise(t *testing.T) {
	base := testutil.DefaultAssembly()
	base.StrongName = bytes.Repeat([]byte{0x11}, 32)
	base.Certificate = bytes.Repeat([]byte{0x22}, 16)

	variants := map[string]func(o *testutil.AssemblyOptions){
		"Timestamp":      func(o *testutil.AssemblyOptions) { o.Timestamp = 0x61000000 },
		"Checksum":       func(o *testutil.AssemblyOptions) { o.Checksum = 0x0001FFFF },
		"DebugTimestamp": func(o *testutil.AssemblyOptions) { o.DebugTimestamp = 0x62000000 },
		"PDBGuid":        func(o *testutil.AssemblyOptions) { o.PDBGuid[0] = 0xFE },
		"PDBAge":         func(o *testutil.AssemblyOptions) { o.PDBAge = 7 },
		"PDBPath":        func(o *testutil.AssemblyOptions) { o.PDBPath = `D:\agent\_work\1\s\obj\Lib.pdb` },
		"MVID":           func(o *testutil.AssemblyOptions) { o.MVID[3] = 0x42 },
		"StrongName":     func(o *testutil.AssemblyOptions) { o.StrongName = bytes.Repeat([]byte{0x33}, 32) },
		"Certificate":    func(o *testutil.AssemblyOptions) { o.Certificate = bytes.Repeat([]byte{0x44}, 16) },
	}

	dir := t.TempDir()
	m := NewManagedAssembly(nil, nil)
	ctx := context.Background()

	want, err := m.Hash(ctx, testutil.WriteFile(t, dir, "base/Lib.dll", testutil.BuildAssembly(base)))
	require.NoError(t, err)
	assert.Equal(t, KindManagedAssembly, want.Kind)

	for name, mutate := range variants {
		t.Run(name, func(t *testing.T) {
			opts := base
			opts.StrongName = bytes.Clone(base.StrongName)
			opts.Certificate = bytes.Clone(base.Certificate)
			mutate(&opts)

			got, err := m.Hash(ctx, testutil.WriteFile(t, dir, name+"/Lib.dll", testutil.BuildAssembly(opts)))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestManagedAssemblyDetectsRealChanges(t *testing.T) {
	base := testutil.DefaultAssembly()

	variants := map[string]func(o *testutil.AssemblyOptions){
		"IL":     func(o *testutil.AssemblyOptions) { o.IL = []byte{0x02, 0x7B, 0x02, 0x00, 0x00, 0x04, 0x2A} },
		"Tables": func(o *testutil.AssemblyOptions) { o.Tables = []byte("TABLES-9876543210") },
	}

	dir := t.TempDir()
	m := NewManagedAssembly(nil, nil)
	ctx := context.Background()

	want, err := m.Hash(ctx, testutil.WriteFile(t, dir, "base/Lib.dll", testutil.BuildAssembly(base)))
	require.NoError(t, err)

	for name, mutate := range variants {
		t.Run(name, func(t *testing.T) {
			opts := base
			mutate(&opts)

			got, err := m.Hash(ctx, testutil.WriteFile(t, dir, name+"/Lib.dll", testutil.BuildAssembly(opts)))
			require.NoError(t, err)
			assert.NotEqual(t, want, got)
		})
	}
}

func TestManagedAssemblyUnparsableImage(t *testing.T) {
	dir := t.TempDir()
	m := NewManagedAssembly(nil, nil)
	ctx := context.Background()

	img := testutil.BuildAssembly(testutil.DefaultAssembly())
	copy(img[testutil.SectionOffset+0x100:], "XXXX")
	other := bytes.Clone(img)
	other[testutil.PEOffset+8] ^= 0xFF // COFF timestamp

	va, err := m.Hash(ctx, testutil.WriteFile(t, dir, "a.dll", img))
	require.NoError(t, err)
	vb, err := m.Hash(ctx, testutil.WriteFile(t, dir, "b.dll", other))
	require.NoError(t, err)

	assert.NotEqual(t, va, vb, "unparsable images are hashed byte for byte")
}

func TestManagedAssemblyUnreadable(t *testing.T) {
	_, err := NewManagedAssembly(nil, nil).Hash(context.Background(), filepath.Join(t.TempDir(), "gone.dll"))
	var unreadable *UnreadableFileError
	assert.True(t, errors.As(err, &unreadable))
}

func TestSelector(t *testing.T) {
	dir := t.TempDir()
	managed := testutil.WriteFile(t, dir, "Lib.dll", testutil.BuildAssembly(testutil.DefaultAssembly()))
	text := testutil.WriteFile(t, dir, "readme.txt", []byte("text"))

	nativeOpts := testutil.DefaultAssembly()
	nativeOpts.Native = true
	native := testutil.WriteFile(t, dir, "native.dll", testutil.BuildAssembly(nativeOpts))

	t.Run("Default", func(t *testing.T) {
		s := NewSelector()
		assert.Equal(t, KindManagedAssembly, s.For(managed).Name())
		assert.Equal(t, KindWholeFile, s.For(text).Name())
		assert.Equal(t, KindWholeFile, s.For(native).Name())
	})

	t.Run("ManagedHashingDisabled", func(t *testing.T) {
		s := NewSelector(WithManagedHashing(false), WithBufferSize(8192))
		assert.Equal(t, KindWholeFile, s.For(managed).Name())
	})

	t.Run("BytesRead", func(t *testing.T) {
		s := NewSelector()
		_, err := s.For(managed).Hash(context.Background(), managed)
		require.NoError(t, err)
		_, err = s.For(text).Hash(context.Background(), text)
		require.NoError(t, err)

		info, err := os.Stat(managed)
		require.NoError(t, err)
		assert.Equal(t, info.Size()+4, s.BytesRead())
	})
}

func TestValuesFromDifferentStrategiesDiffer(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "Lib.dll", testutil.BuildAssembly(testutil.DefaultAssembly()))
	ctx := context.Background()

	whole, err := NewWholeFile(0, nil).Hash(ctx, path)
	require.NoError(t, err)
	managed, err := NewManagedAssembly(nil, nil).Hash(ctx, path)
	require.NoError(t, err)

	assert.NotEqual(t, whole, managed)
}

func TestReadLimitKeepsDigests(t *testing.T) {
	dir := t.TempDir()
	managed := testutil.WriteFile(t, dir, "Lib.dll", testutil.BuildAssembly(testutil.DefaultAssembly()))
	text := testutil.WriteFile(t, dir, "a.txt", bytes.Repeat([]byte("x"), 10000))
	ctx := context.Background()

	plain := NewSelector()
	limited := NewSelector(WithReadLimit(ratelimit.NewLimiter(64 * 1024 * 1024)))

	for _, path := range []string{managed, text} {
		want, err := plain.For(path).Hash(ctx, path)
		require.NoError(t, err)
		got, err := limited.For(path).Hash(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, want, got, path)
	}
	assert.Equal(t, plain.BytesRead(), limited.BytesRead())
}
