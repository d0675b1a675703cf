package tarindex

import (
	"errors"
	"fmt"
	"io"

	"github.com/aurora-is-near/tarnav/src/ustar"
	"github.com/containerd/log"
)

var (
	ErrMissingHeader = errors.New("missing index header")
	ErrShortIndex    = errors.New("index has fewer entries than announced")
	ErrIndexMismatch = errors.New("index was written for a different archive")
)

func listToChan(ra io.ReaderAt) (list *lister) {
	list = newLister()
	go func() {
		defer close(list.c)
		if err := list.addArchive(ra); err != nil {
			list.c <- err
		}
	}()
	return list
}

// ListToChan produces a flow of list entries send to chan entries.
// The channel is closed after listing has been completed.
// The channel will contain either *ListEntry or error entries.
//
//goland:noinspection GoUnusedExportedFunction
func ListToChan(ra io.ReaderAt) (entries chan interface{}) {
	list := listToChan(ra)
	return list.c
}

// ListToFunc produces a flow of list entries that are given to entryFunc for processing.
func ListToFunc(ra io.ReaderAt, entryFunc func(*ListEntry) error) error {
	list := listToChan(ra)
	for m := range list.c {
		switch n := m.(type) {
		case *ListEntry:
			if err := entryFunc(n); err != nil {
				list.exit()
				return err
			}
		case error:
			return n
		}
	}
	return nil
}

// IndexHeader reads the first record of an index file and returns the number of entries and the
// size of the indexed archive.
func IndexHeader(r io.Reader) (count, size int64, err error) {
	if r2, ok := r.(io.Seeker); ok {
		if _, err := r2.Seek(0, io.SeekStart); err != nil {
			return 0, 0, err
		}
	}
	buf := new(BinaryEntry)
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF {
			return 0, 0, ErrMissingHeader
		}
		return 0, 0, err
	}
	e := buf.ToListEntry()
	if e.Typeflag != headerTypeflag || e.Name != headerMagic {
		return 0, 0, ErrMissingHeader
	}
	return e.FirstByte, e.Size, nil
}

// WriteIndex validates the archive in ra and writes its index to w. The archive size in the header
// record is only filled in when w is an io.WriteSeeker; it is 0 otherwise. When ra reports its
// size, as *io.SectionReader does, that size is recorded; otherwise the end of the terminator is.
func WriteIndex(ra io.ReaderAt, w io.Writer) error {
	count, err := ustar.NewReader(ra).Validate()
	if err != nil {
		return fmt.Errorf("archive is not valid: %w", err)
	}
	var size int64
	var written int
	entryFunc := func(e *ListEntry) error {
		if written == 0 {
			// The archive size is only known at the end; reserve the header record now.
			if _, err := w.Write(headerEntry(int64(count), 0)[:]); err != nil {
				return err
			}
		}
		if _, err := w.Write(e.BinaryEntry()[:]); err != nil {
			return err
		}
		size = e.LastByte
		written++
		return nil
	}
	if err := ListToFunc(ra, entryFunc); err != nil {
		return err
	}
	size += tarFooterSize
	if sized, ok := ra.(interface{ Size() int64 }); ok {
		size = sized.Size()
	}
	if written == 0 {
		_, err := w.Write(headerEntry(0, size)[:])
		return err
	}
	if w2, ok := w.(io.WriteSeeker); ok {
		if _, err := w2.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if _, err := w.Write(headerEntry(int64(written), size)[:]); err != nil {
			return err
		}
	}
	log.L.WithFields(log.Fields{
		"entries": written,
		"size":    size,
	}).Debug("index written")
	return nil
}

// ReadIndex reads an index file written by WriteIndex and returns its entries, ready for
// ustar.OptIndex.
func ReadIndex(r io.Reader) ([]ustar.Entry, error) {
	count, _, err := IndexHeader(r)
	if err != nil {
		return nil, err
	}
	return readEntries(r, count)
}

// ReadIndexFor is ReadIndex for an archive of archiveSize bytes. It fails with ErrIndexMismatch
// when the index records a different size.
func ReadIndexFor(r io.Reader, archiveSize int64) ([]ustar.Entry, error) {
	count, size, err := IndexHeader(r)
	if err != nil {
		return nil, err
	}
	if size != 0 && size != archiveSize {
		return nil, fmt.Errorf("%w: index records %d bytes, archive has %d", ErrIndexMismatch, size, archiveSize)
	}
	return readEntries(r, count)
}

func readEntries(r io.Reader, count int64) ([]ustar.Entry, error) {
	entries := make([]ustar.Entry, 0, count)
	buf := new(BinaryEntry)
	for i := int64(0); i < count; i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, ErrShortIndex
			}
			return nil, err
		}
		entries = append(entries, buf.ToListEntry().Entry())
	}
	return entries, nil
}
