package ustar

import "bytes"

// cString returns the bytes of field up to the first NUL.
func cString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}

// parseOctal reads field like strtol with base 8: leading blanks are skipped and digits are
// consumed up to the first byte that is not an octal digit. An empty field yields 0.
func parseOctal(field []byte) int64 {
	var n int64
	i := 0
	for i < len(field) && (field[i] == ' ' || field[i] == '\t') {
		i++
	}
	for ; i < len(field); i++ {
		c := field[i]
		if c < '0' || c > '7' {
			break
		}
		n = n<<3 | int64(c-'0')
	}
	return n
}

func (b *block) name() string {
	return cString(b[nameOffset : nameOffset+nameLen])
}

func (b *block) linkname() string {
	return cString(b[linknameOffset : linknameOffset+linknameLen])
}

func (b *block) typeflag() byte {
	return b[typeflagOffset]
}

func (b *block) size() int64 {
	return parseOctal(b[sizeOffset : sizeOffset+sizeLen])
}

func (b *block) isZero() bool {
	return *b == zeroBlock
}

func (b *block) validMagic() bool {
	return string(b[magicOffset:magicOffset+magicLen]) == tarMagic
}

// validVersion accepts the field when either byte matches "00". Only a field where both bytes
// differ is rejected.
func (b *block) validVersion() bool {
	v := b[versionOffset : versionOffset+versionLen]
	return v[0] == tarVersion[0] || v[1] == tarVersion[1]
}

// computeChecksum sums all header bytes, reading the checksum field as eight spaces.
func (b *block) computeChecksum() int64 {
	var sum int64
	for i, c := range b {
		if i >= chksumOffset && i < chksumOffset+chksumLen {
			c = ' '
		}
		sum += int64(c)
	}
	return sum
}

func (b *block) storedChecksum() int64 {
	return parseOctal(b[chksumOffset : chksumOffset+chksumLen])
}

// check verifies magic, version and checksum, in that order.
func (b *block) check() error {
	if !b.validMagic() {
		return ErrBadMagic
	}
	if !b.validVersion() {
		return ErrBadVersion
	}
	if b.storedChecksum() != b.computeChecksum() {
		return ErrBadChecksum
	}
	return nil
}

func (b *block) entry(offset int64) Entry {
	flag := b.typeflag()
	return Entry{
		Name:     b.name(),
		Linkname: b.linkname(),
		Typeflag: flag,
		Type:     TypeOf(flag),
		Size:     b.size(),
		Offset:   offset,
	}
}
