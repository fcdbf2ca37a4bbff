package pe

import "encoding/binary"

type (
	ImageResourceDirectory struct {
		Characteristics      uint32
		TimeDateStamp        uint32
		MajorVersion         uint16
		MinorVersion         uint16
		NumberOfNamedEntries uint16
		NumberOfIDEntries    uint16
	}

	ImageResourceDirectoryEntry struct {
		Name         uint32
		OffsetToData uint32
	}

	ImageResourceDataEntry struct {
		OffsetToData uint32
		Size         uint32
		CodePage     uint32
		Reserved     uint32
	}
)

// ResourceLeaf is a located resource payload: a file offset and a declared
// size.
type ResourceLeaf struct {
	Offset uint32
	Size   uint32
}

// FindResourceLeaves walks the resource directory along a path of ID sets,
// one set of acceptable numeric IDs per tree level, and returns the file
// offsets of every matching leaf. Named entries are skipped; the catalog
// never needs name-keyed resources. Normally zero or one leaf matches, but
// multiple are tolerated and the caller picks the first usable one.
func (f *File) FindResourceLeaves(idPath [][]uint32) ([]ResourceLeaf, error) {
	rdd, ok := f.dataDirectory(ImageDirectoryEntryResource)
	if !ok {
		return nil, nil
	}

	base, err := f.OffsetFromRVA(rdd.VirtualAddress)
	if err != nil {
		return nil, err
	}

	var leaves []ResourceLeaf
	visited := []uint32{0}
	if err := f.walkResourceDir(base, 0, idPath, visited, &leaves); err != nil {
		return nil, err
	}
	return leaves, nil
}

// walkResourceDir reads the directory at base+tableOffset and recurses into
// subdirectories whose IDs match the head of idPath. The visited list guards
// against offset cycles in hostile tables.
func (f *File) walkResourceDir(base, tableOffset uint32, idPath [][]uint32, visited []uint32, leaves *[]ResourceLeaf) error {
	if len(idPath) == 0 || len(visited) > maxResourceDepth {
		return nil
	}

	var dir ImageResourceDirectory
	dirSize := uint32(binary.Size(dir))
	if err := f.structUnpack(&dir, base+tableOffset, dirSize); err != nil {
		return err
	}

	total := uint32(dir.NumberOfNamedEntries) + uint32(dir.NumberOfIDEntries)
	if total > maxAllowedEntries {
		return ErrOutsideBoundary
	}

	entrySize := uint32(binary.Size(ImageResourceDirectoryEntry{}))
	// ID entries follow the named entries in the table.
	firstID := uint32(dir.NumberOfNamedEntries)

	for i := firstID; i < total; i++ {
		var entry ImageResourceDirectoryEntry
		entryOffset := base + tableOffset + dirSize + i*entrySize
		if err := f.structUnpack(&entry, entryOffset, entrySize); err != nil {
			return err
		}

		if !idInSet(entry.Name, idPath[0]) {
			continue
		}

		if entry.OffsetToData&resourceSubdirFlag != 0 {
			subOffset := entry.OffsetToData & resourceOffsetMask
			if intInSlice(subOffset, visited) {
				continue
			}
			err := f.walkResourceDir(base, subOffset, idPath[1:], append(visited, subOffset), leaves)
			if err != nil {
				return err
			}
			continue
		}

		// A leaf only matches when the path is exhausted.
		if len(idPath) != 1 {
			continue
		}

		var data ImageResourceDataEntry
		if err := f.structUnpack(&data, base+entry.OffsetToData, uint32(binary.Size(data))); err != nil {
			return err
		}

		offset, err := f.OffsetFromRVA(data.OffsetToData)
		if err != nil {
			return err
		}
		*leaves = append(*leaves, ResourceLeaf{Offset: offset, Size: data.Size})
	}
	return nil
}

func idInSet(id uint32, set []uint32) bool {
	for _, v := range set {
		if v == id {
			return true
		}
	}
	return false
}

func intInSlice(a uint32, list []uint32) bool {
	for _, b := range list {
		if b == a {
			return true
		}
	}
	return false
}
