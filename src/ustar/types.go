// Package ustar navigates USTAR tar archives in place. Every query is answered by walking the raw
// 512 byte header blocks of an io.ReaderAt; nothing is extracted and no tree is built.
package ustar

const (
	tarBlockSize  int64 = 512
	tarFooterSize       = tarBlockSize * 2

	nameOffset     = 0
	nameLen        = 100
	sizeOffset     = 124
	sizeLen        = 12
	chksumOffset   = 148
	chksumLen      = 8
	typeflagOffset = 156
	linknameOffset = 157
	linknameLen    = 100
	magicOffset    = 257
	magicLen       = 6
	versionOffset  = 263
	versionLen     = 2

	tarMagic   = "ustar\x00"
	tarVersion = "00"

	pathSeparator = '/'

	defaultMaxLinkDepth = 40
)

type block [tarBlockSize]byte

var zeroBlock block

// Typeflag values understood by the navigator.
const (
	TypeReg     byte = '0'
	TypeRegA    byte = '\x00'
	TypeLink    byte = '1'
	TypeSymlink byte = '2'
	TypeDir     byte = '5'
)

// EntryType is the category an entry's typeflag falls into.
type EntryType byte

const (
	EntryTypeOther     EntryType = 0x00
	EntryTypeDirectory EntryType = 0x01
	EntryTypeFile      EntryType = 0x02
	EntryTypeLink      EntryType = 0x03
)

// typeTable maps typeflags to categories. Hard links are deliberately treated as symbolic links:
// their linkname is followed like any other link target.
var typeTable = map[byte]EntryType{
	TypeReg:     EntryTypeFile,
	TypeRegA:    EntryTypeFile,
	TypeDir:     EntryTypeDirectory,
	TypeLink:    EntryTypeLink,
	TypeSymlink: EntryTypeLink,
}

// TypeOf returns the category of typeflag.
func TypeOf(typeflag byte) EntryType {
	if t, ok := typeTable[typeflag]; ok {
		return t
	}
	return EntryTypeOther
}

func (t EntryType) String() string {
	switch t {
	case EntryTypeDirectory:
		return "directory"
	case EntryTypeFile:
		return "file"
	case EntryTypeLink:
		return "symlink"
	default:
		return "other"
	}
}

// MarshalText encodes the category by name.
func (t EntryType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Entry describes one archived object as found in its header block.
type Entry struct {
	Name     string    `json:"name"`               // Path of the entry, exactly as stored.
	Linkname string    `json:"linkname,omitempty"` // Target of link entries.
	Typeflag byte      `json:"typeflag"`
	Type     EntryType `json:"type"`
	Size     int64     `json:"size"`   // Content length in bytes.
	Offset   int64     `json:"offset"` // Byte offset of the header block.
}

// DataOffset is the byte offset of the entry's first content byte.
func (e *Entry) DataOffset() int64 {
	return e.Offset + tarBlockSize
}

// Blocks is the number of blocks occupied by header and content.
func (e *Entry) Blocks() int64 {
	return 1 + contentBlocks(e.Size)
}

func contentBlocks(size int64) int64 {
	if size%tarBlockSize == 0 {
		return size / tarBlockSize
	}
	return 1 + size/tarBlockSize
}
