// Package testutil builds small but structurally valid PE images for tests.
//
// The image has one ".text" section (file offset 0x200, RVA 0x1000) holding a
// CLI header, a strong-name blob, a CodeView debug directory, a metadata root
// with "#~" and "#GUID" streams, and an IL body. Every field that changes
// between reproducible rebuilds can be set independently.
package testutil

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// Layout of the generated image
const (
	PEOffset       = 0x80
	SectionOffset  = 0x200
	SectionRVA     = 0x1000
	SectionSize    = 0x200
	CertOffset     = SectionOffset + SectionSize
	clrOffset      = 0x00
	strongNameOff  = 0x48
	debugDirOff    = 0x70
	rsdsOff        = 0x90
	metadataOff    = 0x100
	ILOffset       = 0x160
	maxIL          = 0x40
	metadataSize   = 96
	tablesSize     = 16
	maxPDBPath     = 0x70 - 24 - 1
	maxStrongName  = 0x20
	imageMachine   = 0x14c
	imageMachine64 = 0x8664
)

// AssemblyOptions controls the contents of a generated image
type AssemblyOptions struct {
	// Native leaves the CLI header directory empty
	Native bool
	// PE32Plus emits a 64-bit optional header
	PE32Plus bool

	Timestamp      uint32
	Checksum       uint32
	DebugTimestamp uint32
	PDBGuid        [16]byte
	PDBAge         uint32
	PDBPath        string
	MVID           [16]byte
	StrongName     []byte
	Certificate    []byte
	Tables         []byte
	IL             []byte
}

// DefaultAssembly returns options for a small managed library
func DefaultAssembly() AssemblyOptions {
	return AssemblyOptions{
		Timestamp:      0x5F000000,
		Checksum:       0x0000ABCD,
		DebugTimestamp: 0x5F000000,
		PDBGuid:        [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		PDBAge:         1,
		PDBPath:        `C:\build\obj\Release\Lib.pdb`,
		MVID:           [16]byte{0xAA, 0xBB, 0xCC, 0xDD, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		Tables:         []byte("TABLES-0123456789"),
		IL:             []byte{0x02, 0x7B, 0x01, 0x00, 0x00, 0x04, 0x2A},
	}
}

// BuildAssembly renders a PE image
func BuildAssembly(opts AssemblyOptions) []byte {
	size := CertOffset + len(opts.Certificate)
	img := make([]byte, size)
	le := binary.LittleEndian

	// DOS header
	img[0], img[1] = 'M', 'Z'
	le.PutUint32(img[0x3C:], PEOffset)

	// PE signature + COFF header
	copy(img[PEOffset:], []byte{'P', 'E', 0, 0})
	coff := PEOffset + 4
	machine := uint16(imageMachine)
	optSize := 224
	if opts.PE32Plus {
		machine = imageMachine64
		optSize = 240
	}
	le.PutUint16(img[coff:], machine)
	le.PutUint16(img[coff+2:], 1)
	le.PutUint32(img[coff+4:], opts.Timestamp)
	le.PutUint16(img[coff+16:], uint16(optSize))
	le.PutUint16(img[coff+18:], 0x2102)

	// Optional header
	opt := coff + 20
	dirTable := opt + 96
	if opts.PE32Plus {
		le.PutUint16(img[opt:], 0x20B)
		le.PutUint64(img[opt+24:], 0x180000000)
		le.PutUint32(img[opt+108:], 16)
		dirTable = opt + 112
	} else {
		le.PutUint16(img[opt:], 0x10B)
		le.PutUint32(img[opt+28:], 0x10000000)
		le.PutUint32(img[opt+92:], 16)
	}
	le.PutUint32(img[opt+4:], SectionSize)
	le.PutUint32(img[opt+20:], SectionRVA)
	le.PutUint32(img[opt+32:], 0x1000)
	le.PutUint32(img[opt+36:], 0x200)
	le.PutUint32(img[opt+56:], 0x2000)
	le.PutUint32(img[opt+60:], SectionOffset)
	le.PutUint32(img[opt+64:], opts.Checksum)
	le.PutUint16(img[opt+68:], 3)

	putDir := func(index int, rva, size uint32) {
		le.PutUint32(img[dirTable+index*8:], rva)
		le.PutUint32(img[dirTable+index*8+4:], size)
	}

	// Section header
	sec := opt + optSize
	copy(img[sec:], ".text")
	le.PutUint32(img[sec+8:], SectionSize)
	le.PutUint32(img[sec+12:], SectionRVA)
	le.PutUint32(img[sec+16:], SectionSize)
	le.PutUint32(img[sec+20:], SectionOffset)
	le.PutUint32(img[sec+36:], 0x60000020)

	body := img[SectionOffset : SectionOffset+SectionSize]

	// Debug directory with a CodeView record
	path := opts.PDBPath
	if len(path) > maxPDBPath {
		path = path[:maxPDBPath]
	}
	rsds := body[rsdsOff:]
	copy(rsds, "RSDS")
	copy(rsds[4:], opts.PDBGuid[:])
	le.PutUint32(rsds[20:], opts.PDBAge)
	copy(rsds[24:], path)
	rsdsLen := uint32(24 + len(path) + 1)

	dbg := body[debugDirOff:]
	le.PutUint32(dbg[4:], opts.DebugTimestamp)
	le.PutUint32(dbg[12:], 2)
	le.PutUint32(dbg[16:], rsdsLen)
	le.PutUint32(dbg[20:], SectionRVA+rsdsOff)
	le.PutUint32(dbg[24:], SectionOffset+rsdsOff)
	putDir(6, SectionRVA+debugDirOff, 28)

	// IL body
	il := opts.IL
	if len(il) > maxIL {
		il = il[:maxIL]
	}
	copy(body[ILOffset:], il)

	if opts.Native {
		putDir(1, SectionRVA+ILOffset, uint32(len(il)))
	} else {
		// CLI header
		clr := body[clrOffset:]
		le.PutUint32(clr[0:], 72)
		le.PutUint16(clr[4:], 2)
		le.PutUint16(clr[6:], 5)
		le.PutUint32(clr[8:], SectionRVA+metadataOff)
		le.PutUint32(clr[12:], metadataSize)
		flags := uint32(1)
		if len(opts.StrongName) > 0 {
			sn := opts.StrongName
			if len(sn) > maxStrongName {
				sn = sn[:maxStrongName]
			}
			copy(body[strongNameOff:], sn)
			le.PutUint32(clr[32:], SectionRVA+strongNameOff)
			le.PutUint32(clr[36:], uint32(len(sn)))
			flags |= 8
		}
		le.PutUint32(clr[16:], flags)
		putDir(14, SectionRVA+clrOffset, 72)

		// Metadata root
		md := body[metadataOff:]
		le.PutUint32(md[0:], 0x424A5342)
		le.PutUint16(md[4:], 1)
		le.PutUint16(md[6:], 1)
		le.PutUint32(md[12:], 12)
		copy(md[16:], "v4.0.30319")
		le.PutUint16(md[30:], 2)
		le.PutUint32(md[32:], 64)
		le.PutUint32(md[36:], tablesSize)
		copy(md[40:], "#~")
		le.PutUint32(md[44:], 80)
		le.PutUint32(md[48:], 16)
		copy(md[52:], "#GUID")
		tables := opts.Tables
		if len(tables) > tablesSize {
			tables = tables[:tablesSize]
		}
		copy(md[64:], tables)
		copy(md[80:], opts.MVID[:])
	}

	if len(opts.Certificate) > 0 {
		copy(img[CertOffset:], opts.Certificate)
		putDir(4, CertOffset, uint32(len(opts.Certificate)))
	}

	return img
}

// WriteFile writes data under dir, creating parent directories
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// MkdirAll creates a directory under dir
func MkdirAll(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("failed to create dir %s: %v", name, err)
	}
	return path
}
