// Package pe reads the two facts the application catalog needs from a
// Portable Executable: the list of imported modules and the version-resource
// string table. It is not a general PE toolkit; exports, relocations and
// debug data are never touched.
package pe

import (
	"encoding/binary"
	"io"
	"os"
	"unicode/utf16"
)

type File struct {
	DOSHeader
	NtHeader
	Sections []SectionHeader

	Is64 bool
	Is32 bool
	size uint32
	f    *os.File
	sr   *io.SectionReader
}

// NewFile opens filename and resolves its DOS/NT headers and section table.
// The returned File holds an open handle until Close is called.
func NewFile(filename string) (*File, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	file, err := newFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return file, nil
}

func newFile(f *os.File) (*File, error) {
	file := new(File)

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	file.size = uint32(stat.Size())

	if file.size < MinFileSize {
		return nil, ErrInvalidPESize
	}

	file.f = f
	file.sr = io.NewSectionReader(f, 0, int64(file.size))

	if err := file.readDOSHeader(); err != nil {
		return nil, err
	}
	if err := file.readNTHeader(); err != nil {
		return nil, err
	}
	if err := file.readSections(); err != nil {
		return nil, err
	}
	return file, nil
}

func (f *File) Close() error {
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

func (f *File) GetSize() uint32 {
	return f.size
}

// ReadUint16 reads a uint16 at the given file offset.
func (f *File) ReadUint16(offset uint32) (uint16, error) {
	data := make([]byte, 2)
	if _, err := f.sr.ReadAt(data, int64(offset)); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

// ReadUint32 reads a uint32 at the given file offset.
func (f *File) ReadUint32(offset uint32) (uint32, error) {
	data := make([]byte, 4)
	if _, err := f.sr.ReadAt(data, int64(offset)); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// structUnpack decodes a fixed-layout little-endian structure at offset,
// refusing reads that overflow or cross the end of the file.
func (f *File) structUnpack(iface interface{}, offset, size uint32) error {
	totalSize := offset + size

	// Integer overflow
	if (totalSize > offset) != (size > 0) {
		return ErrOutsideBoundary
	}

	if offset >= f.size || totalSize > f.size {
		return ErrOutsideBoundary
	}

	sr := io.NewSectionReader(f.sr, int64(offset), int64(size))
	return binary.Read(sr, binary.LittleEndian, iface)
}

// readCString reads a NUL-terminated single-byte string starting at offset,
// scanning one byte at a time. It returns the string and the offset
// immediately past the terminator.
func (f *File) readCString(offset, maxLen uint32) (string, uint32, error) {
	buf := make([]byte, 0, 16)
	b := make([]byte, 1)
	for i := uint32(0); i < maxLen; i++ {
		if _, err := f.sr.ReadAt(b, int64(offset+i)); err != nil {
			return "", 0, err
		}
		if b[0] == 0 {
			return string(buf), offset + i + 1, nil
		}
		buf = append(buf, b[0])
	}
	return string(buf), offset + maxLen, nil
}

// readUTF16String reads a NUL-terminated double-byte string starting at
// offset, scanning one code unit at a time. It returns the decoded string
// and the offset immediately past the terminator.
func (f *File) readUTF16String(offset, maxLen uint32) (string, uint32, error) {
	units := make([]uint16, 0, 16)
	for i := uint32(0); i < maxLen; i++ {
		u, err := f.ReadUint16(offset + i*2)
		if err != nil {
			return "", 0, err
		}
		if u == 0 {
			return string(utf16.Decode(units)), offset + (i+1)*2, nil
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units)), offset + maxLen*2, nil
}
