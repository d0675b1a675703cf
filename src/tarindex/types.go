package tarindex

import "github.com/aurora-is-near/tarnav/src/ustar"

const (
	tarBlockSize  int64 = 512
	tarFooterSize       = tarBlockSize * 2

	binaryOffsetLen = 8
	binarySizeLen   = 8
	binaryTypeLen   = 1
	binaryNameLen   = 100
	binaryLinkLen   = 100
	binaryOffsetPos = 0
	binaryOffsetEnd = binaryOffsetPos + binaryOffsetLen
	binarySizePos   = binaryOffsetEnd
	binarySizeEnd   = binarySizePos + binarySizeLen
	binaryTypePos   = binarySizeEnd
	binaryTypeEnd   = binaryTypePos + binaryTypeLen
	binaryNamePos   = binaryTypeEnd
	binaryNameEnd   = binaryNamePos + binaryNameLen
	binaryLinkPos   = binaryNameEnd
	binaryLinkEnd   = binaryLinkPos + binaryLinkLen

	binaryEntrySize int = binaryLinkEnd

	// headerTypeflag marks the first record of an index file. No tar typeflag uses it.
	headerTypeflag byte = 0xff
	headerMagic         = "tarnav-index/1"
)

// ListEntry describes an entry of an archive together with the bytes it occupies.
type ListEntry struct {
	Size      int64  // Size of the content.
	Name      string // Path of the entry in the archive.
	Linkname  string // Target of links.
	Typeflag  byte   // Raw typeflag of the header.
	FirstByte int64  // First byte of the header block.
	LastByte  int64  // One past the last byte of the padded content.
}

// Type is the navigator category of the entry.
func (entry *ListEntry) Type() ustar.EntryType {
	return ustar.TypeOf(entry.Typeflag)
}

// TarSize is the number of archive bytes taken by header and padded content.
func (entry *ListEntry) TarSize() int64 {
	return entry.LastByte - entry.FirstByte
}

func paddedTarBlockSize(size int64) int64 {
	if size%tarBlockSize == 0 {
		return size
	}
	return tarBlockSize + (size/tarBlockSize)*tarBlockSize
}

func fromEntry(e ustar.Entry) *ListEntry {
	return fromEntryFields(e.Offset, e.Size, e.Typeflag, e.Name, e.Linkname)
}

// Entry converts the list entry back to the navigator's view.
func (entry *ListEntry) Entry() ustar.Entry {
	return ustar.Entry{
		Name:     entry.Name,
		Linkname: entry.Linkname,
		Typeflag: entry.Typeflag,
		Type:     entry.Type(),
		Size:     entry.Size,
		Offset:   entry.FirstByte,
	}
}
