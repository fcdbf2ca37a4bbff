package pe

import (
	"strings"
	"unicode/utf16"

	"github.com/pkg/errors"
)

const (
	versionRootKey    = "VS_VERSION_INFO"
	stringFileInfoKey = "StringFileInfo"
	// Tables are keyed by an 8-hex-digit language/codepage tag such as
	// "040904B0". 04B0 is the Unicode codepage; the language half varies.
	unicodeCodePageSuffix = "04b0"
)

// versionBlockHeader is the fixed prefix every VERSIONINFO pseudo-structure
// (VS_VERSIONINFO, StringFileInfo, StringTable, String) starts with. A
// NUL-terminated UTF-16 key follows, then 4-byte alignment padding, then the
// value payload bounded by Length.
type versionBlockHeader struct {
	Length      uint16
	ValueLength uint16
	Type        uint16
}

const versionBlockHeaderSize = 6

// VersionStrings decodes the VERSIONINFO resource's StringTable into a
// name→value map (keys such as FileDescription and ProductName). The
// neutral and US-English languages are tried. Decoding failures of any kind
// yield an empty map; version metadata is best-effort and a hostile resource
// tree must not abort the caller's scan.
func (f *File) VersionStrings() map[string]string {
	leaves, err := f.FindResourceLeaves([][]uint32{
		{ResourceTypeVersion},
		{1},
		{LangNeutral, LangEnglishUS},
	})
	if err != nil {
		return map[string]string{}
	}

	for _, leaf := range leaves {
		strs, err := f.parseVersionInfo(leaf)
		if err == nil && len(strs) > 0 {
			return strs
		}
	}
	return map[string]string{}
}

func (f *File) parseVersionInfo(leaf ResourceLeaf) (map[string]string, error) {
	hdr, key, valuePos, err := f.readVersionBlock(leaf.Offset)
	if err != nil {
		return nil, err
	}
	if key != versionRootKey {
		return nil, errors.Errorf("unexpected VERSIONINFO key %q", key)
	}

	end := leaf.Offset + uint32(hdr.Length)
	if end > f.size {
		end = f.size
	}

	// Skip the VS_FIXEDFILEINFO value; only the string tables matter here.
	pos := alignTo(leaf.Offset, valuePos+uint32(hdr.ValueLength))

	for pos+versionBlockHeaderSize <= end {
		childHdr, childKey, childValuePos, err := f.readVersionBlock(pos)
		if err != nil {
			return nil, err
		}
		if childHdr.Length == 0 {
			break
		}

		childEnd := pos + uint32(childHdr.Length)
		if childEnd > end {
			childEnd = end
		}

		if childKey == stringFileInfoKey {
			return f.parseStringTables(leaf.Offset, childValuePos, childEnd)
		}

		// VarFileInfo and anything else is skipped.
		pos = alignTo(leaf.Offset, childEnd)
	}
	return nil, errors.New("no StringFileInfo block found")
}

// parseStringTables walks the StringTable children of a StringFileInfo
// block. The table is picked by its language/codepage tag rather than a
// fixed offset: any table whose codepage half matches the Unicode codepage
// is preferred, with the first table as fallback.
func (f *File) parseStringTables(base, pos, end uint32) (map[string]string, error) {
	var fallback map[string]string

	for pos+versionBlockHeaderSize <= end {
		hdr, key, valuePos, err := f.readVersionBlock(pos)
		if err != nil {
			return nil, err
		}
		if hdr.Length == 0 {
			break
		}

		tableEnd := pos + uint32(hdr.Length)
		if tableEnd > end {
			tableEnd = end
		}

		strs, err := f.parseStrings(base, valuePos, tableEnd)
		if err != nil {
			return nil, err
		}

		if strings.HasSuffix(strings.ToLower(key), unicodeCodePageSuffix) {
			return strs, nil
		}
		if fallback == nil {
			fallback = strs
		}

		pos = alignTo(base, tableEnd)
	}

	if fallback == nil {
		return nil, errors.New("no StringTable found")
	}
	return fallback, nil
}

// parseStrings walks the String entries of one StringTable. Each entry
// declares its value length in words; some producers report bytes instead,
// so the length is clamped to the bytes actually remaining in the entry and
// in the table rather than trusted.
func (f *File) parseStrings(base, pos, tableEnd uint32) (map[string]string, error) {
	strs := make(map[string]string)

	for pos+versionBlockHeaderSize <= tableEnd {
		hdr, key, valuePos, err := f.readVersionBlock(pos)
		if err != nil {
			return nil, err
		}
		if hdr.Length == 0 {
			break
		}

		structEnd := pos + uint32(hdr.Length)
		if structEnd > tableEnd {
			structEnd = tableEnd
		}

		valueLen := uint32(hdr.ValueLength) * 2
		if valuePos > structEnd {
			valueLen = 0
		} else if valueLen > structEnd-valuePos {
			valueLen = structEnd - valuePos
		}

		value, err := f.readUTF16Value(valuePos, valueLen)
		if err != nil {
			return nil, err
		}
		strs[key] = value

		pos = alignTo(base, structEnd)
	}
	return strs, nil
}

// readVersionBlock reads the fixed header and the NUL-terminated UTF-16 key
// of one VERSIONINFO pseudo-structure, returning the header, the key, and
// the aligned offset of the value payload.
func (f *File) readVersionBlock(offset uint32) (versionBlockHeader, string, uint32, error) {
	var hdr versionBlockHeader
	if err := f.structUnpack(&hdr, offset, versionBlockHeaderSize); err != nil {
		return hdr, "", 0, err
	}

	key, next, err := f.readUTF16String(offset+versionBlockHeaderSize, maxVersionStringLen)
	if err != nil {
		return hdr, "", 0, err
	}

	return hdr, key, alignTo(offset, next), nil
}

// readUTF16Value reads length bytes at offset and decodes them as UTF-16,
// dropping a trailing terminator if present.
func (f *File) readUTF16Value(offset, length uint32) (string, error) {
	units := make([]uint16, 0, length/2)
	for i := uint32(0); i+1 < length; i += 2 {
		u, err := f.ReadUint16(offset + i)
		if err != nil {
			return "", err
		}
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units)), nil
}

// alignTo rounds pos up to the next 4-byte boundary relative to base, the
// start of the enclosing VERSIONINFO block.
func alignTo(base, pos uint32) uint32 {
	rel := pos - base
	return base + (rel+3)&^3
}
