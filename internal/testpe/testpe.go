// Package testpe builds minimal but structurally valid PE images for tests:
// real DOS/NT headers, a section table, an import directory and a version
// resource tree, laid out the way linkers lay them out.
package testpe

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"
)

var le = binary.LittleEndian

const (
	importBaseRVA   = 0x1000
	resourceBaseRVA = 0x2000
	importRawOffset = 0x400
)

// Builder describes the synthetic executable to generate.
type Builder struct {
	Is64    bool
	Imports []string          // module names for the import directory
	Version map[string]string // entries for the VERSIONINFO string table

	// TableKey overrides the StringTable language/codepage tag
	// (default "040904B0").
	TableKey string

	// SiblingLanguage adds a second, decoy version leaf under this
	// language ID with an empty string table.
	SiblingLanguage uint32

	// TruncateImports points the first module-name RVA outside every
	// section, producing an unreadable import table.
	TruncateImports bool
}

// WriteFile builds the image and writes it under dir with the given name,
// returning the full path.
func WriteFile(t *testing.T, dir, name string, b Builder) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b.Build(), 0o644); err != nil {
		t.Fatalf("writing synthetic PE: %v", err)
	}
	return path
}

// Build assembles the image.
func (b Builder) Build() []byte {
	idata := b.buildImportSection()
	rsrc := b.buildResourceSection()

	type section struct {
		name    string
		rva     uint32
		data    []byte
		rawOff  uint32
		rawSize uint32
	}

	var sections []section
	rawOff := uint32(importRawOffset)
	if len(idata) > 0 {
		s := section{name: ".idata", rva: importBaseRVA, data: idata, rawOff: rawOff, rawSize: alignUp(uint32(len(idata)), 0x200)}
		rawOff += s.rawSize
		sections = append(sections, s)
	}
	if len(rsrc) > 0 {
		s := section{name: ".rsrc", rva: resourceBaseRVA, data: rsrc, rawOff: rawOff, rawSize: alignUp(uint32(len(rsrc)), 0x200)}
		rawOff += s.rawSize
		sections = append(sections, s)
	}

	var optSize uint16 = 0xE0
	machine := uint16(0x14C) // IMAGE_FILE_MACHINE_I386
	if b.Is64 {
		optSize = 0xF0
		machine = 0x8664 // IMAGE_FILE_MACHINE_AMD64
	}

	buf := new(bytes.Buffer)

	// DOS header: magic, then e_lfanew at offset 60.
	dos := make([]byte, 64)
	le.PutUint16(dos[0:2], 0x5A4D)
	le.PutUint32(dos[60:64], 0x80)
	buf.Write(dos)
	buf.Write(make([]byte, 0x80-64))

	// NT signature and file header.
	must(binary.Write(buf, le, uint32(0x00004550)))
	must(binary.Write(buf, le, machine))
	must(binary.Write(buf, le, uint16(len(sections)))) // NumberOfSections
	buf.Write(make([]byte, 12))                        // TimeDateStamp, PointerToSymbolTable, NumberOfSymbols
	must(binary.Write(buf, le, optSize))
	must(binary.Write(buf, le, uint16(0x0102))) // Characteristics

	// Optional header.
	var dd [16][2]uint32
	if len(idata) > 0 {
		dd[1] = [2]uint32{importBaseRVA, uint32(len(idata))}
	}
	if len(rsrc) > 0 {
		dd[2] = [2]uint32{resourceBaseRVA, uint32(len(rsrc))}
	}

	if b.Is64 {
		must(binary.Write(buf, le, uint16(0x20B)))
		buf.Write(make([]byte, 2))                      // linker versions
		buf.Write(make([]byte, 20))                     // code/data sizes, entry point, base of code
		must(binary.Write(buf, le, uint64(0x140000000))) // ImageBase
		must(binary.Write(buf, le, uint32(0x1000)))      // SectionAlignment
		must(binary.Write(buf, le, uint32(0x200)))       // FileAlignment
		buf.Write(make([]byte, 12))                      // OS/image/subsystem versions
		buf.Write(make([]byte, 16))                      // win32 ver, image size, header size, checksum
		buf.Write(make([]byte, 4))                       // subsystem, dll characteristics
		buf.Write(make([]byte, 32))                      // stack/heap reserves (uint64 x4)
		buf.Write(make([]byte, 4))                       // loader flags
		must(binary.Write(buf, le, uint32(16)))          // NumberOfRvaAndSizes
	} else {
		must(binary.Write(buf, le, uint16(0x10B)))
		buf.Write(make([]byte, 2))                  // linker versions
		buf.Write(make([]byte, 20))                 // code/data sizes, entry point, base of code
		buf.Write(make([]byte, 4))                  // BaseOfData
		must(binary.Write(buf, le, uint32(0x400000))) // ImageBase
		must(binary.Write(buf, le, uint32(0x1000)))   // SectionAlignment
		must(binary.Write(buf, le, uint32(0x200)))    // FileAlignment
		buf.Write(make([]byte, 12))                 // OS/image/subsystem versions
		buf.Write(make([]byte, 16))                 // win32 ver, image size, header size, checksum
		buf.Write(make([]byte, 4))                  // subsystem, dll characteristics
		buf.Write(make([]byte, 16))                 // stack/heap reserves (uint32 x4)
		buf.Write(make([]byte, 4))                  // loader flags
		must(binary.Write(buf, le, uint32(16)))     // NumberOfRvaAndSizes
	}
	for _, d := range dd {
		must(binary.Write(buf, le, d[0]))
		must(binary.Write(buf, le, d[1]))
	}

	// Section table.
	for _, s := range sections {
		var name [8]byte
		copy(name[:], s.name)
		buf.Write(name[:])
		must(binary.Write(buf, le, uint32(len(s.data)))) // VirtualSize
		must(binary.Write(buf, le, s.rva))
		must(binary.Write(buf, le, s.rawSize))
		must(binary.Write(buf, le, s.rawOff))
		buf.Write(make([]byte, 12)) // relocations, line numbers
		must(binary.Write(buf, le, uint32(0x40000040))) // initialized data, readable
	}

	out := buf.Bytes()
	for _, s := range sections {
		end := s.rawOff + s.rawSize
		if uint32(len(out)) < end {
			out = append(out, make([]byte, end-uint32(len(out)))...)
		}
		copy(out[s.rawOff:], s.data)
	}
	if len(out) < 0x400 {
		out = append(out, make([]byte, 0x400-len(out))...)
	}
	return out
}

// buildImportSection lays out import descriptors followed by the module
// name strings, all addressed relative to importBaseRVA.
func (b Builder) buildImportSection() []byte {
	if len(b.Imports) == 0 {
		return nil
	}

	const descSize = 20
	nameOff := uint32((len(b.Imports) + 1) * descSize)

	names := new(bytes.Buffer)
	nameRVAs := make([]uint32, len(b.Imports))
	for i, imp := range b.Imports {
		nameRVAs[i] = importBaseRVA + nameOff + uint32(names.Len())
		names.WriteString(imp)
		names.WriteByte(0)
	}

	if b.TruncateImports {
		// An RVA no section contains.
		nameRVAs[0] = 0x00F00000
	}

	buf := new(bytes.Buffer)
	for _, rva := range nameRVAs {
		must(binary.Write(buf, le, uint32(0))) // OriginalFirstThunk
		must(binary.Write(buf, le, uint32(0))) // TimeDateStamp
		must(binary.Write(buf, le, uint32(0))) // ForwarderChain
		must(binary.Write(buf, le, rva))       // Name
		must(binary.Write(buf, le, uint32(0))) // FirstThunk
	}
	buf.Write(make([]byte, descSize)) // zero terminator entry
	buf.Write(names.Bytes())
	return buf.Bytes()
}

// buildResourceSection lays out a three-level resource tree
// (type 16 → name 1 → language) whose leaves point at VERSIONINFO blobs.
func (b Builder) buildResourceSection() []byte {
	if len(b.Version) == 0 {
		return nil
	}

	langs := []uint32{1033}
	if b.SiblingLanguage != 0 {
		langs = append([]uint32{b.SiblingLanguage}, langs...)
	}

	const dirSize = 16
	const entrySize = 8
	const dataEntrySize = 16

	l0 := uint32(0)
	l1 := l0 + dirSize + entrySize
	l2 := l1 + dirSize + entrySize
	dataEntries := l2 + dirSize + uint32(len(langs))*entrySize
	blobBase := alignUp(dataEntries+uint32(len(langs))*dataEntrySize, 4)

	tableKey := b.TableKey
	if tableKey == "" {
		tableKey = "040904B0"
	}

	blobs := make([][]byte, len(langs))
	blobOffs := make([]uint32, len(langs))
	off := blobBase
	for i, lang := range langs {
		if lang == 1033 {
			blobs[i] = buildVersionInfo(tableKey, b.Version)
		} else {
			blobs[i] = buildVersionInfo(tableKey, nil)
		}
		blobOffs[i] = off
		off = alignUp(off+uint32(len(blobs[i])), 4)
	}

	buf := new(bytes.Buffer)

	writeDir := func(named, ids uint16) {
		buf.Write(make([]byte, 12)) // characteristics, timestamp, versions
		must(binary.Write(buf, le, named))
		must(binary.Write(buf, le, ids))
	}
	writeEntry := func(id, offset uint32) {
		must(binary.Write(buf, le, id))
		must(binary.Write(buf, le, offset))
	}

	writeDir(0, 1)
	writeEntry(16, 0x80000000|l1)
	writeDir(0, 1)
	writeEntry(1, 0x80000000|l2)
	writeDir(0, uint16(len(langs)))
	for i, lang := range langs {
		writeEntry(lang, dataEntries+uint32(i)*dataEntrySize)
	}
	for i := range langs {
		must(binary.Write(buf, le, resourceBaseRVA+blobOffs[i])) // OffsetToData (RVA)
		must(binary.Write(buf, le, uint32(len(blobs[i]))))       // Size
		buf.Write(make([]byte, 8))                               // CodePage, Reserved
	}
	for i := range langs {
		pad(buf, blobOffs[i])
		buf.Write(blobs[i])
	}
	return buf.Bytes()
}

// buildVersionInfo assembles VS_VERSIONINFO → StringFileInfo → StringTable
// with the given entries.
func buildVersionInfo(tableKey string, entries map[string]string) []byte {
	var stringBlocks [][]byte
	for _, k := range sortedKeys(entries) {
		v := entries[k]
		value := utf16z(v)
		stringBlocks = append(stringBlocks, versionBlock(k, uint16(len(value)/2), 1, value, nil))
	}

	table := versionBlock(tableKey, 0, 1, nil, stringBlocks)
	sfi := versionBlock("StringFileInfo", 0, 1, nil, [][]byte{table})
	fixed := make([]byte, 52) // VS_FIXEDFILEINFO placeholder
	return versionBlock("VS_VERSION_INFO", uint16(len(fixed)), 0, fixed, [][]byte{sfi})
}

// versionBlock writes one {wLength, wValueLength, wType, szKey, padding,
// value, children} pseudo-structure and back-patches wLength.
func versionBlock(key string, valueLen uint16, typ uint16, value []byte, children [][]byte) []byte {
	buf := new(bytes.Buffer)
	must(binary.Write(buf, le, uint16(0))) // wLength, patched below
	must(binary.Write(buf, le, valueLen))
	must(binary.Write(buf, le, typ))
	buf.Write(utf16z(key))
	pad(buf, alignUp(uint32(buf.Len()), 4))
	buf.Write(value)
	for _, c := range children {
		pad(buf, alignUp(uint32(buf.Len()), 4))
		buf.Write(c)
	}
	out := buf.Bytes()
	le.PutUint16(out[0:2], uint16(len(out)))
	return out
}

func utf16z(s string) []byte {
	units := append(utf16.Encode([]rune(s)), 0)
	out := make([]byte, len(units)*2)
	for i, u := range units {
		le.PutUint16(out[i*2:], u)
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	return keys
}

func pad(buf *bytes.Buffer, to uint32) {
	for uint32(buf.Len()) < to {
		buf.WriteByte(0)
	}
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
