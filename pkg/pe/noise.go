package pe

import (
	"bytes"
	pefile "debug/pe"
	"encoding/binary"
	"fmt"
	"sort"
)

// Offsets inside structures referenced from the data directory table
const (
	coffTimestampOffset = 8  // from the PE signature
	checksumOffset      = 64 // from the optional header, PE32 and PE32+
	debugEntrySize      = 28
	debugTimestamp      = 4
	debugSizeOfData     = 16
	debugPointerToData  = 24
	cliHeaderSize       = 72
	cliMetadata         = 8
	cliStrongName       = 32
	metadataSignature   = 0x424A5342 // "BSJB"

	certificateDirectory = 4
	debugDirectory       = 6
)

// Range is a span of file bytes
type Range struct {
	Offset int64
	Length int64
}

// NoiseRanges returns the byte ranges of a managed image that differ between
// functionally identical builds: the COFF timestamp, the optional header
// checksum, the certificate table, debug directory records and payloads, the
// strong-name signature and the #GUID metadata heap.
//
// The returned ranges are sorted and lie within data.
func NoiseRanges(data []byte) ([]Range, error) {
	f, err := pefile.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	defer f.Close()

	size := int64(len(data))
	le := binary.LittleEndian
	peOffset := int64(le.Uint32(data[peOffsetPointer:]))
	optionalHeader := peOffset + signatureSize + coffHeaderSize

	var (
		dirs       []pefile.DataDirectory
		tableStart int64
	)
	switch oh := f.OptionalHeader.(type) {
	case *pefile.OptionalHeader32:
		dirs = oh.DataDirectory[:min(int(oh.NumberOfRvaAndSizes), len(oh.DataDirectory))]
		tableStart = optionalHeader + dataDirectoryOffset32
	case *pefile.OptionalHeader64:
		dirs = oh.DataDirectory[:min(int(oh.NumberOfRvaAndSizes), len(oh.DataDirectory))]
		tableStart = optionalHeader + dataDirectoryOffset64
	default:
		return nil, fmt.Errorf("%w: image has no optional header", ErrMalformedHeader)
	}

	var ranges []Range
	add := func(off, n int64) {
		if off < 0 || n <= 0 || off >= size {
			return
		}
		if off+n > size {
			n = size - off
		}
		ranges = append(ranges, Range{Offset: off, Length: n})
	}
	u32 := func(off int64) (uint32, bool) {
		if off < 0 || off+4 > size {
			return 0, false
		}
		return le.Uint32(data[off:]), true
	}

	add(peOffset+coffTimestampOffset, 4)
	add(optionalHeader+checksumOffset, 4)

	// The certificate directory holds a file offset, not an RVA
	if len(dirs) > certificateDirectory && dirs[certificateDirectory].Size > 0 {
		cert := dirs[certificateDirectory]
		add(tableStart+certificateDirectory*8, 8)
		add(int64(cert.VirtualAddress), int64(cert.Size))
	}

	if len(dirs) > debugDirectory && dirs[debugDirectory].Size > 0 {
		dbg := dirs[debugDirectory]
		start, ok := rvaToOffset(f, dbg.VirtualAddress)
		if !ok {
			return nil, fmt.Errorf("%w: debug directory RVA 0x%X not mapped", ErrMalformedHeader, dbg.VirtualAddress)
		}
		for i := int64(0); i < int64(dbg.Size)/debugEntrySize; i++ {
			entry := start + i*debugEntrySize
			if entry+debugEntrySize > size {
				return nil, fmt.Errorf("%w: debug entry %d past end of file", ErrMalformedHeader, i)
			}
			add(entry+debugTimestamp, 4)
			add(entry+debugSizeOfData, 4)
			n, _ := u32(entry + debugSizeOfData)
			ptr, _ := u32(entry + debugPointerToData)
			add(int64(ptr), int64(n))
		}
	}

	if len(dirs) > CLRDirectory && dirs[CLRDirectory].VirtualAddress != 0 {
		cli, ok := rvaToOffset(f, dirs[CLRDirectory].VirtualAddress)
		if !ok || cli+cliHeaderSize > size {
			return nil, fmt.Errorf("%w: CLI header not mapped", ErrMalformedHeader)
		}

		snRVA, _ := u32(cli + cliStrongName)
		snSize, _ := u32(cli + cliStrongName + 4)
		if snRVA != 0 && snSize > 0 {
			if off, ok := rvaToOffset(f, snRVA); ok {
				add(off, int64(snSize))
			}
		}

		mdRVA, _ := u32(cli + cliMetadata)
		mdOff, ok := rvaToOffset(f, mdRVA)
		if !ok {
			return nil, fmt.Errorf("%w: metadata RVA 0x%X not mapped", ErrMalformedHeader, mdRVA)
		}
		guid, err := guidHeap(data, mdOff)
		if err != nil {
			return nil, err
		}
		if guid.Length > 0 {
			add(guid.Offset, guid.Length)
		}
	}

	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].Offset < ranges[j].Offset
	})
	return ranges, nil
}

// Mask zeroes every range in data
func Mask(data []byte, ranges []Range) {
	for _, r := range ranges {
		end := min(r.Offset+r.Length, int64(len(data)))
		if r.Offset < 0 || r.Offset >= end {
			continue
		}
		clear(data[r.Offset:end])
	}
}

// guidHeap walks the metadata root stream headers looking for "#GUID"
func guidHeap(data []byte, root int64) (Range, error) {
	size := int64(len(data))
	le := binary.LittleEndian

	if root < 0 || root+16 > size || le.Uint32(data[root:]) != metadataSignature {
		return Range{}, fmt.Errorf("%w: metadata signature not found", ErrMalformedHeader)
	}

	versionLen := int64(le.Uint32(data[root+12:]))
	p := root + 16 + versionLen
	if versionLen > 255 || p+4 > size {
		return Range{}, fmt.Errorf("%w: metadata version length %d", ErrMalformedHeader, versionLen)
	}

	streams := int(le.Uint16(data[p+2:]))
	p += 4

	for i := 0; i < streams; i++ {
		if p+8 > size {
			return Range{}, fmt.Errorf("%w: stream header %d past end of file", ErrMalformedHeader, i)
		}
		offset := int64(le.Uint32(data[p:]))
		length := int64(le.Uint32(data[p+4:]))
		p += 8

		nameEnd := bytes.IndexByte(data[p:min(p+32, size)], 0)
		if nameEnd < 0 {
			return Range{}, fmt.Errorf("%w: unterminated stream name", ErrMalformedHeader)
		}
		name := string(data[p : p+int64(nameEnd)])
		// names are NUL terminated and padded to a 4-byte boundary
		p += (int64(nameEnd) + 4) &^ 3

		if name == "#GUID" {
			return Range{Offset: root + offset, Length: length}, nil
		}
	}

	return Range{}, nil
}

func rvaToOffset(f *pefile.File, rva uint32) (int64, bool) {
	for _, s := range f.Sections {
		extent := max(s.VirtualSize, s.Size)
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+extent {
			delta := rva - s.VirtualAddress
			if delta >= s.Size {
				return 0, false
			}
			return int64(s.Offset) + int64(delta), true
		}
	}
	return 0, false
}
