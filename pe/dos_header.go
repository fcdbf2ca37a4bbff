package pe

type DOSHeader struct {
	Magic                    uint16
	BytesOnLastPageOfFile    uint16
	PagesInFile              uint16
	Relocations              uint16
	SizeOfHeader             uint16
	MinExtraParagraphsNeeded uint16
	MaxExtraParagraphsNeeded uint16
	InitialSS                uint16
	InitialSP                uint16
	Checksum                 uint16
	InitialIP                uint16
	InitialCS                uint16
	AddressOfRelocationTable uint16
	OverlayNumber            uint16
	ReservedWords1           [4]uint16
	OEMIdentifier            uint16
	OEMInformation           uint16
	ReservedWords2           [10]uint16
	AddressOfNewEXEHeader    uint32
}

func (f *File) readDOSHeader() error {
	if err := f.structUnpack(&f.DOSHeader, 0, uint32(DOSHeaderSize)); err != nil {
		return err
	}

	if f.DOSHeader.Magic != ImageDOSSignature {
		return ErrInvalidDOSSignature
	}

	if f.DOSHeader.AddressOfNewEXEHeader < 4 || f.DOSHeader.AddressOfNewEXEHeader > f.size {
		return ErrInvalidDOSSignature
	}
	return nil
}
