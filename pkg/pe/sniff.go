// Package pe classifies Windows PE/COFF images and locates the regions of a
// CLI (managed) image that change between reproducible rebuilds.
package pe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sdejongh/asmdiff/internal/platform"
)

// Header layout consulted by ReadHeader
const (
	// peOffsetPointer holds the file offset of the PE signature
	peOffsetPointer = 0x3C
	signatureSize   = 4
	coffHeaderSize  = 20
	// Offset of the data directory table from the start of the optional header
	dataDirectoryOffset32 = 0x60
	dataDirectoryOffset64 = 0x70

	magicPE32     = 0x10B
	magicPE32Plus = 0x20B

	// HeaderDirectories is the number of (RVA, size) pairs read by ReadHeader
	HeaderDirectories = 15
	// CLRDirectory is the index of the CLI runtime header directory
	CLRDirectory = 14
)

// ErrMalformedHeader is returned when header offsets point outside the file
// or the image lacks the MZ/PE signatures.
var ErrMalformedHeader = errors.New("malformed PE header")

// DataDirectory is one (RVA, size) pair of the optional header table
type DataDirectory struct {
	RVA  uint32
	Size uint32
}

// Header is the result of probing an image
type Header struct {
	PEOffset    uint32
	Magic       uint16
	Directories [HeaderDirectories]DataDirectory
}

// IsManaged reports whether the CLI runtime header directory is populated
func (h Header) IsManaged() bool {
	return h.Directories[CLRDirectory].RVA != 0
}

// IsCandidate reports whether a path has an extension worth probing
func IsCandidate(path string) bool {
	return platform.HasExt(path, ".dll", ".exe")
}

// IsManagedBinary reports whether path is a managed .dll/.exe.
// Any failure to read or parse the header yields false.
func IsManagedBinary(path string) bool {
	if !IsCandidate(path) {
		return false
	}
	h, err := Inspect(path)
	if err != nil {
		return false
	}
	return h.IsManaged()
}

// Inspect opens path and reads its header
func Inspect(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Header{}, fmt.Errorf("failed to stat file: %w", err)
	}

	return ReadHeader(f, info.Size())
}

// ReadHeader reads the data directory table of the image in r.
//
// The PE header offset is read from 0x3C; the table starts 0x60 bytes past the
// end of the COFF file header for PE32 images and 0x70 bytes for PE32+.
//
// The optional header magic selects the offset. A reader that always used 0x60
// would read a PE32+ table 16 bytes early: SizeOfHeapCommit and the
// LoaderFlags/NumberOfRvaAndSizes words would become pairs 0 and 1, and the
// CLI header slot would hold the import address table (directory 12), so
// 64-bit images would be misclassified.
// Images without the MZ and PE\0\0 signatures are rejected before the table
// is read.
func ReadHeader(r io.ReaderAt, size int64) (Header, error) {
	var h Header
	le := binary.LittleEndian

	var mz [2]byte
	if err := readAt(r, size, mz[:], 0); err != nil {
		return h, err
	}
	if mz != [2]byte{'M', 'Z'} {
		return h, fmt.Errorf("%w: missing MZ signature", ErrMalformedHeader)
	}

	var word [4]byte
	if err := readAt(r, size, word[:], peOffsetPointer); err != nil {
		return h, err
	}
	h.PEOffset = le.Uint32(word[:])

	if err := readAt(r, size, word[:], int64(h.PEOffset)); err != nil {
		return h, err
	}
	if word != [4]byte{'P', 'E', 0, 0} {
		return h, fmt.Errorf("%w: missing PE signature at 0x%X", ErrMalformedHeader, h.PEOffset)
	}

	optionalHeader := int64(h.PEOffset) + signatureSize + coffHeaderSize

	var magic [2]byte
	if err := readAt(r, size, magic[:], optionalHeader); err != nil {
		return h, err
	}
	h.Magic = le.Uint16(magic[:])

	tableStart := optionalHeader + dataDirectoryOffset32
	if h.Magic == magicPE32Plus {
		tableStart = optionalHeader + dataDirectoryOffset64
	}

	table := make([]byte, HeaderDirectories*8)
	if err := readAt(r, size, table, tableStart); err != nil {
		return h, err
	}
	for i := range h.Directories {
		h.Directories[i] = DataDirectory{
			RVA:  le.Uint32(table[i*8:]),
			Size: le.Uint32(table[i*8+4:]),
		}
	}

	return h, nil
}

func readAt(r io.ReaderAt, size int64, p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > size {
		return fmt.Errorf("%w: read of %d bytes at 0x%X exceeds file size %d", ErrMalformedHeader, len(p), off, size)
	}
	n, err := r.ReadAt(p, off)
	if n < len(p) {
		return fmt.Errorf("%w: short read at 0x%X: %v", ErrMalformedHeader, off, err)
	}
	return nil
}
