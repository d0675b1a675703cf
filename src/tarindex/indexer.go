package tarindex

import (
	"bytes"
	"encoding/binary"
)

// BinaryEntry is the fixed-width record of an index file: header offset, content size, typeflag,
// name and link target.
type BinaryEntry [binaryEntrySize]byte

// BinaryEntry returns the index record for the ListEntry.
func (entry *ListEntry) BinaryEntry() *BinaryEntry {
	bin := new(BinaryEntry)
	binary.LittleEndian.PutUint64(bin[binaryOffsetPos:binaryOffsetEnd], uint64(entry.FirstByte))
	binary.LittleEndian.PutUint64(bin[binarySizePos:binarySizeEnd], uint64(entry.Size))
	bin[binaryTypePos] = entry.Typeflag
	copy(bin[binaryNamePos:binaryNameEnd], entry.Name)
	copy(bin[binaryLinkPos:binaryLinkEnd], entry.Linkname)
	return bin
}

func readString(d []byte) string {
	return string(bytes.TrimRightFunc(d, func(r rune) bool { return r == 0x00 }))
}

// ToListEntry decodes the record.
func (bin *BinaryEntry) ToListEntry() *ListEntry {
	return fromEntryFields(
		int64(binary.LittleEndian.Uint64(bin[binaryOffsetPos:binaryOffsetEnd])),
		int64(binary.LittleEndian.Uint64(bin[binarySizePos:binarySizeEnd])),
		bin[binaryTypePos],
		readString(bin[binaryNamePos:binaryNameEnd]),
		readString(bin[binaryLinkPos:binaryLinkEnd]),
	)
}

func fromEntryFields(offset, size int64, typeflag byte, name, linkname string) *ListEntry {
	return &ListEntry{
		Size:      size,
		Name:      name,
		Linkname:  linkname,
		Typeflag:  typeflag,
		FirstByte: offset,
		LastByte:  offset + tarBlockSize + paddedTarBlockSize(size),
	}
}

// headerEntry is the first record of an index: the entry count in the offset field and the size
// of the archive, terminator included, in the size field.
func headerEntry(count, archiveSize int64) *BinaryEntry {
	bin := new(BinaryEntry)
	binary.LittleEndian.PutUint64(bin[binaryOffsetPos:binaryOffsetEnd], uint64(count))
	binary.LittleEndian.PutUint64(bin[binarySizePos:binarySizeEnd], uint64(archiveSize))
	bin[binaryTypePos] = headerTypeflag
	copy(bin[binaryNamePos:binaryNameEnd], headerMagic)
	return bin
}
