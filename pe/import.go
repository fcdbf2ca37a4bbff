package pe

import "encoding/binary"

type ImageImportDescriptor struct {
	OriginalFirstThunk uint32
	TimeDateStamp      uint32
	ForwarderChain     uint32
	Name               uint32
	FirstThunk         uint32
}

// ImportedLibraries walks the import directory and returns the names of the
// modules this binary links against, in table order. A missing import
// directory and a malformed or truncated table both yield an empty list; a
// broken import table in one candidate must never abort a catalog-wide scan,
// so nothing here propagates an error.
func (f *File) ImportedLibraries() []string {
	idd, ok := f.dataDirectory(ImageDirectoryEntryImport)
	if !ok {
		return nil
	}

	offset, err := f.OffsetFromRVA(idd.VirtualAddress)
	if err != nil {
		return nil
	}

	descSize := uint32(binary.Size(ImageImportDescriptor{}))

	var libraries []string
	for i := uint32(0); i < maxAllowedEntries; i++ {
		var desc ImageImportDescriptor
		if err := f.structUnpack(&desc, offset+i*descSize, descSize); err != nil {
			return nil
		}

		// A zero module-name RVA terminates the array.
		if desc.Name == 0 {
			break
		}

		nameOffset, err := f.OffsetFromRVA(desc.Name)
		if err != nil {
			return nil
		}

		name, _, err := f.readCString(nameOffset, maxDllLength)
		if err != nil {
			return nil
		}
		libraries = append(libraries, name)
	}
	return libraries
}
