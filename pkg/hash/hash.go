// Package hash produces comparable content fingerprints for single files.
//
// Two strategies exist: WholeFile digests every byte, ManagedAssembly digests
// a managed image with its rebuild noise masked out. A Selector picks one per
// path based on the PE header check.
package hash

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Kind names a hashing strategy
type Kind string

const (
	KindWholeFile       Kind = "whole-file"
	KindManagedAssembly Kind = "managed-assembly"
)

// Value is a file fingerprint. Values compare with ==; values produced by
// different strategies are never equal.
type Value struct {
	Kind Kind
	Sum  [sha256.Size]byte
}

// String returns the hex digest prefixed by the strategy
func (v Value) String() string {
	return string(v.Kind) + ":" + hex.EncodeToString(v.Sum[:])
}

// Short returns the first 12 hex characters of the digest
func (v Value) Short() string {
	return hex.EncodeToString(v.Sum[:6])
}

// Strategy hashes a single file
type Strategy interface {
	// Hash returns the fingerprint of the file at path
	Hash(ctx context.Context, path string) (Value, error)

	// Name returns the strategy name
	Name() Kind
}

// UnreadableFileError reports a file that could not be opened or read
type UnreadableFileError struct {
	Path string
	Err  error
}

func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("unreadable file %s: %v", e.Path, e.Err)
}

func (e *UnreadableFileError) Unwrap() error {
	return e.Err
}
