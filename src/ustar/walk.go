package ustar

import (
	"io"

	"github.com/pkg/errors"
)

// walker steps through the header blocks of an archive. nb is the index, in blocks, of the next
// header to read.
type walker struct {
	ra io.ReaderAt
	nb int64
}

func newWalker(ra io.ReaderAt, offset int64) *walker {
	return &walker{ra: ra, nb: offset / tarBlockSize}
}

// readBlock reads block nb into b. It reports end of data when nothing at all could be read.
func (w *walker) readBlock(nb int64, b *block) (eod bool, err error) {
	n, err := w.ra.ReadAt(b[:], nb*tarBlockSize)
	if n == len(b) {
		return false, nil
	}
	if n == 0 && err == io.EOF {
		return true, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return false, errors.Wrapf(err, "read block %d", nb)
}

// next returns the next header block and its byte offset. It returns io.EOF at the end of the
// archive: two consecutive zero blocks, or a zero block followed by end of data, or end of data
// on a header boundary. A single zero block followed by anything else is returned as a header.
func (w *walker) next() (*block, int64, error) {
	b := new(block)
	eod, err := w.readBlock(w.nb, b)
	if err != nil {
		return nil, 0, err
	}
	if eod {
		return nil, 0, io.EOF
	}
	if b.isZero() {
		ahead := new(block)
		eod, err := w.readBlock(w.nb+1, ahead)
		if err != nil {
			return nil, 0, err
		}
		if eod || ahead.isZero() {
			return nil, 0, io.EOF
		}
	}
	offset := w.nb * tarBlockSize
	w.nb += 1 + contentBlocks(b.size())
	return b, offset, nil
}

// walk calls fn for every header from offset on until fn returns stop or the archive ends.
func walk(ra io.ReaderAt, offset int64, fn func(b *block, offset int64) (stop bool, err error)) error {
	w := newWalker(ra, offset)
	for {
		b, off, err := w.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		stop, err := fn(b, off)
		if err != nil || stop {
			return err
		}
	}
}
