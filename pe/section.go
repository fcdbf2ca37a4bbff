package pe

import (
	"bytes"
	"encoding/binary"
	"io"
)

type SectionHeader32 struct {
	Name                 [8]uint8
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations  uint16
	NumberOfLineNumbers  uint16
	Characteristics      uint32
}

type SectionHeader struct {
	Name           string
	VirtualSize    uint32
	VirtualAddress uint32
	Size           uint32
	Offset         uint32
}

// cString converts ASCII byte sequence b to string.
// It stops once it finds 0 or reaches end of b.
func cString(b []byte) string {
	i := bytes.IndexByte(b, 0)
	if i == -1 {
		i = len(b)
	}
	return string(b[:i])
}

// readSections reads the section table, which begins immediately after the
// optional header.
func (f *File) readSections() error {
	optionalHeaderOffset := f.DOSHeader.AddressOfNewEXEHeader + 4 + uint32(binary.Size(f.NtHeader.FileHeader))
	offset := optionalHeaderOffset + uint32(f.NtHeader.FileHeader.SizeOfOptionalHeader)
	if _, err := f.sr.Seek(int64(offset), io.SeekStart); err != nil {
		return err
	}

	f.Sections = make([]SectionHeader, 0, f.FileHeader.NumberOfSections)
	for i := 0; i < int(f.FileHeader.NumberOfSections); i++ {
		var sh SectionHeader32
		if err := binary.Read(f.sr, binary.LittleEndian, &sh); err != nil {
			return err
		}
		f.Sections = append(f.Sections, SectionHeader{
			Name:           cString(sh.Name[:]),
			VirtualSize:    sh.VirtualSize,
			VirtualAddress: sh.VirtualAddress,
			Size:           sh.SizeOfRawData,
			Offset:         sh.PointerToRawData,
		})
	}
	return nil
}

// OffsetFromRVA translates a relative virtual address to a file offset using
// the section table. Resource and import data is addressed by RVA but must
// be read from the on-disk layout, which differs from the in-memory one.
func (f *File) OffsetFromRVA(rva uint32) (uint32, error) {
	for _, s := range f.Sections {
		if s.VirtualAddress <= rva && rva < s.VirtualAddress+s.VirtualSize {
			return s.Offset + (rva - s.VirtualAddress), nil
		}
	}
	return 0, ErrNoSectionForRVA
}
