package ustar

import (
	"io"
	"strings"

	"github.com/containerd/log"
	"github.com/pkg/errors"
)

// Reader answers queries about a single archive. It keeps no state between calls besides its
// configuration, so one Reader may be shared by goroutines as long as the underlying source
// supports concurrent ReadAt calls (os.File and bytes.Reader do).
type Reader struct {
	ra           io.ReaderAt
	maxLinkDepth int
	index        []Entry
	indexed      bool
}

// NewReader returns a Reader over the archive in ra. The Reader never closes ra.
func NewReader(ra io.ReaderAt, options ...Option) *Reader {
	r := &Reader{
		ra:           ra,
		maxLinkDepth: defaultMaxLinkDepth,
	}
	for _, opt := range options {
		opt.applyOption(r)
	}
	return r
}

// each calls fn for every entry whose header starts at or after offset, in archive order.
func (r *Reader) each(offset int64, fn func(e *Entry) (stop bool, err error)) error {
	if r.indexed {
		for i := range r.index {
			if r.index[i].Offset < offset {
				continue
			}
			e := r.index[i]
			if stop, err := fn(&e); err != nil || stop {
				return err
			}
		}
		return nil
	}
	return walk(r.ra, offset, func(b *block, off int64) (bool, error) {
		e := b.entry(off)
		return fn(&e)
	})
}

// find returns the first entry named name for which match returns true.
func (r *Reader) find(name string, match func(e *Entry) bool) (found Entry, ok bool, err error) {
	err = r.each(0, func(e *Entry) (bool, error) {
		if e.Name == name && (match == nil || match(e)) {
			found, ok = *e, true
			return true, nil
		}
		return false, nil
	})
	return found, ok, err
}

// Validate checks magic, version and checksum of every header. It returns the number of headers
// in the archive, or the first violation found.
func (r *Reader) Validate() (int, error) {
	count := 0
	err := walk(r.ra, 0, func(b *block, _ int64) (bool, error) {
		if err := b.check(); err != nil {
			return true, err
		}
		count++
		return false, nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Exists reports whether some entry is named exactly path. No normalization takes place: "dir"
// and "dir/" are different names. The error is non-nil only when reading the source fails.
func (r *Reader) Exists(path string) (bool, error) {
	_, ok, err := r.find(path, nil)
	return ok, err
}

func (r *Reader) isType(path string, t EntryType) (bool, error) {
	_, ok, err := r.find(path, func(e *Entry) bool { return e.Type == t })
	return ok, err
}

// IsDir reports whether path names a directory entry.
func (r *Reader) IsDir(path string) (bool, error) {
	return r.isType(path, EntryTypeDirectory)
}

// IsFile reports whether path names a regular file entry.
func (r *Reader) IsFile(path string) (bool, error) {
	return r.isType(path, EntryTypeFile)
}

// IsSymlink reports whether path names a symbolic link or a hard link entry.
func (r *Reader) IsSymlink(path string) (bool, error) {
	return r.isType(path, EntryTypeLink)
}

// Stat returns the first entry named path.
func (r *Reader) Stat(path string) (Entry, error) {
	e, ok, err := r.find(path, nil)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Resolve follows links starting at path and returns the first entry that is not a link.
func (r *Reader) Resolve(path string) (Entry, error) {
	return r.resolve(path, false)
}

// resolve follows the chain of links from path. path itself must match a name exactly. With
// dirHop set a link target that is not found as written is retried with a trailing separator, so
// a link to "dir" reaches the directory entry "dir/".
func (r *Reader) resolve(path string, dirHop bool) (Entry, error) {
	visited := make(map[string]struct{})
	for hops := 0; ; hops++ {
		e, err := r.Stat(path)
		if errors.Is(err, ErrNotFound) && dirHop && hops > 0 && !strings.HasSuffix(path, string(pathSeparator)) {
			e, err = r.Stat(withSeparator(path))
		}
		if err != nil {
			return Entry{}, err
		}
		if e.Type != EntryTypeLink {
			return e, nil
		}
		if _, seen := visited[e.Name]; seen || hops >= r.maxLinkDepth {
			return Entry{}, errors.Wrapf(ErrSymlinkLoop, "resolving %q", e.Name)
		}
		visited[e.Name] = struct{}{}
		log.L.WithFields(log.Fields{
			"link":   e.Name,
			"target": e.Linkname,
		}).Debug("following link")
		path = e.Linkname
	}
}

func withSeparator(p string) string {
	if strings.HasSuffix(p, string(pathSeparator)) {
		return p
	}
	return p + string(pathSeparator)
}

// isChild reports whether name is a direct child of the directory prefix dir: a plain name, or a
// sub-directory name ending in a single separator.
func isChild(dir, name string) bool {
	if len(name) <= len(dir) || !strings.HasPrefix(name, dir) {
		return false
	}
	rest := strings.TrimSuffix(name[len(dir):], string(pathSeparator))
	return rest != "" && strings.IndexByte(rest, pathSeparator) < 0
}

// List returns the direct children of the directory at path, following links to directories.
// At most capacity names are returned; truncated is set when more children exist. A negative
// capacity means no limit. Children are reported in archive order, with their full archive path.
func (r *Reader) List(path string, capacity int) (entries []string, truncated bool, err error) {
	dir, err := r.resolve(path, true)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, ErrNotADirectory
		}
		return nil, false, err
	}
	if dir.Type != EntryTypeDirectory {
		return nil, false, ErrNotADirectory
	}
	prefix := withSeparator(dir.Name)
	entries = make([]string, 0)
	err = r.each(dir.Offset+dir.Blocks()*tarBlockSize, func(e *Entry) (bool, error) {
		if !isChild(prefix, e.Name) {
			return false, nil
		}
		if capacity >= 0 && len(entries) >= capacity {
			truncated = true
			return true, nil
		}
		entries = append(entries, e.Name)
		return false, nil
	})
	if err != nil {
		return nil, false, err
	}
	return entries, truncated, nil
}

// file resolves path to a regular file entry.
func (r *Reader) file(path string) (Entry, error) {
	e, err := r.resolve(path, false)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Entry{}, ErrNotAFile
		}
		return Entry{}, err
	}
	if e.Type != EntryTypeFile {
		return Entry{}, ErrNotAFile
	}
	return e, nil
}

// Read copies content of the file at path, starting offset bytes into the file, into dest. It
// returns the number of bytes copied and the number of bytes of the file left unread after them.
// An offset equal to the file size reads nothing and reports 0 remaining.
func (r *Reader) Read(path string, offset int64, dest []byte) (n int, remaining int64, err error) {
	e, err := r.file(path)
	if err != nil {
		return 0, 0, err
	}
	if offset < 0 || offset > e.Size {
		return 0, 0, ErrOffsetOutOfRange
	}
	left := e.Size - offset
	want := int64(len(dest))
	if left < want {
		want = left
	}
	if want == 0 {
		return 0, left, nil
	}
	got, err := r.ra.ReadAt(dest[:want], e.DataOffset()+offset)
	if int64(got) < want {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return got, left - int64(got), errors.Wrapf(err, "read %q at offset %d", path, offset)
	}
	return got, left - want, nil
}

// Open returns a reader over the content of the regular file at path.
func (r *Reader) Open(path string) (*io.SectionReader, error) {
	e, err := r.file(path)
	if err != nil {
		return nil, err
	}
	return io.NewSectionReader(r.ra, e.DataOffset(), e.Size), nil
}

// Walk calls fn with every entry of the archive, in order, reading headers from the source. It
// stops at the first error returned by fn.
func (r *Reader) Walk(fn func(e Entry) error) error {
	return walk(r.ra, 0, func(b *block, off int64) (bool, error) {
		return false, fn(b.entry(off))
	})
}

// Entries walks the archive once and returns every entry in order. The result can be handed to
// OptIndex to avoid re-reading headers on each query.
func (r *Reader) Entries() ([]Entry, error) {
	var entries []Entry
	err := r.Walk(func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.L.WithField("entries", len(entries)).Debug("archive indexed")
	return entries, nil
}
