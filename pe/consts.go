package pe

// MinFileSize On Windows XP (x32) the smallest PE executable is 97 bytes.
const MinFileSize = 97

const (
	ImageDOSSignature      = 0x5A4D // MZ
	ImageNTHeaderSignature = 0x00004550
)

const (
	OptionalHeaderMagic32 = 0x10B
	OptionalHeaderMagic64 = 0x20B
)

// IMAGE_DIRECTORY_ENTRY constants
const (
	ImageDirectoryEntryExport   = 0
	ImageDirectoryEntryImport   = 1
	ImageDirectoryEntryResource = 2
)

// Resource type IDs of the entries this package looks up.
const (
	ResourceTypeVersion = 16 // RT_VERSION
)

// Language IDs accepted when locating a VERSIONINFO leaf.
const (
	LangNeutral   = 0
	LangEnglishUS = 1033
)

const (
	resourceSubdirFlag = 0x80000000
	resourceOffsetMask = 0x7FFFFFFF
)

const (
	maxAllowedEntries   = 0x1000
	maxDllLength        = 0x200
	maxResourceDepth    = 8
	maxVersionStringLen = 0x1000
)

var DOSHeaderSize = 64
