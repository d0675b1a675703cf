package tarindex

import (
	"archive/tar"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aurora-is-near/tarnav/src/ustar"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"
)

func testArchive(t *testing.T) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := tar.NewWriter(buf)
	for _, hdr := range []*tar.Header{
		{Name: "dir/", Typeflag: tar.TypeDir},
		{Name: "dir/a", Typeflag: tar.TypeReg, Size: 5},
		{Name: "dir/big", Typeflag: tar.TypeReg, Size: 1500},
		{Name: "dir/sub/", Typeflag: tar.TypeDir},
		{Name: "link", Typeflag: tar.TypeSymlink, Linkname: "dir"},
	} {
		hdr.Mode = 0644
		hdr.ModTime = time.Unix(1700000000, 0)
		hdr.Format = tar.FormatUSTAR
		assert.NilError(t, w.WriteHeader(hdr))
		_, err := w.Write(bytes.Repeat([]byte("x"), int(hdr.Size)))
		assert.NilError(t, err)
	}
	assert.NilError(t, w.Close())
	return buf.Bytes()
}

func TestBinaryEntry(t *testing.T) {
	e := &ListEntry{Name: "dir/big", Linkname: "", Typeflag: tar.TypeReg, Size: 1500, FirstByte: 1024}
	re := e.BinaryEntry().ToListEntry()
	assert.Equal(t, re.Name, e.Name)
	assert.Equal(t, re.Size, e.Size)
	assert.Equal(t, re.FirstByte, e.FirstByte)
	assert.Equal(t, re.LastByte, int64(1024+512+1536))
	assert.Equal(t, re.TarSize(), int64(4*tarBlockSize))
	assert.Equal(t, re.Type(), ustar.EntryTypeFile)
}

func TestLister(t *testing.T) {
	data := testArchive(t)
	var names []string
	var offset int64
	err := ListToFunc(bytes.NewReader(data), func(e *ListEntry) error {
		if e.FirstByte != offset {
			t.Errorf("Entry %s starts at %d, previous ended at %d", e.Name, e.FirstByte, offset)
		}
		offset = e.LastByte
		names = append(names, e.Name)
		return nil
	})
	if err != nil {
		t.Fatalf("ListToFunc: %s", err)
	}
	assert.DeepEqual(t, names, []string{"dir/", "dir/a", "dir/big", "dir/sub/", "link"})
	assert.Equal(t, offset+tarFooterSize, int64(len(data)))
}

func TestListerStop(t *testing.T) {
	stop := errors.New("stop")
	seen := 0
	err := ListToFunc(bytes.NewReader(testArchive(t)), func(e *ListEntry) error {
		seen++
		return stop
	})
	assert.Check(t, is.ErrorIs(err, stop))
	assert.Equal(t, seen, 1)
}

func TestListToChan(t *testing.T) {
	n := 0
	for m := range ListToChan(bytes.NewReader(testArchive(t))) {
		switch v := m.(type) {
		case *ListEntry:
			n++
		case error:
			t.Fatalf("ListToChan: %s", v)
		}
	}
	assert.Equal(t, n, 5)
}

func TestWriter(t *testing.T) {
	data := testArchive(t)
	dir := fs.NewDir(t, "tarindex")
	name := filepath.Join(dir.Path(), "archive.taridx")
	f, err := os.Create(name)
	if err != nil {
		t.Fatalf("Create: %s", err)
	}
	if err := WriteIndex(bytes.NewReader(data), f); err != nil {
		t.Fatalf("WriteIndex: %s", err)
	}
	_ = f.Close()

	f, err = os.Open(name)
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	defer func() { _ = f.Close() }()
	count, size, err := IndexHeader(f)
	if err != nil {
		t.Fatalf("IndexHeader: %s", err)
	}
	assert.Equal(t, count, int64(5))
	assert.Equal(t, size, int64(len(data)))

	entries, err := ReadIndex(f)
	assert.NilError(t, err)
	want, err := ustar.NewReader(bytes.NewReader(data)).Entries()
	assert.NilError(t, err)
	assert.DeepEqual(t, entries, want)

	r := ustar.NewReader(bytes.NewReader(data), ustar.OptIndex(entries))
	list, truncated, err := r.List("link", -1)
	assert.NilError(t, err)
	assert.Check(t, !truncated)
	assert.DeepEqual(t, list, []string{"dir/a", "dir/big", "dir/sub/"})
}

func TestWriteIndexStream(t *testing.T) {
	buf := new(bytes.Buffer)
	assert.NilError(t, WriteIndex(bytes.NewReader(testArchive(t)), buf))
	assert.Equal(t, buf.Len(), 6*binaryEntrySize)
	entries, err := ReadIndex(bytes.NewReader(buf.Bytes()))
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 5)

	_, err = ReadIndex(bytes.NewReader(buf.Bytes()[:4*binaryEntrySize]))
	assert.Check(t, is.ErrorIs(err, ErrShortIndex))
}

func TestWriteIndexInvalid(t *testing.T) {
	data := testArchive(t)
	data[257] = 'X'
	err := WriteIndex(bytes.NewReader(data), new(bytes.Buffer))
	assert.Check(t, is.ErrorIs(err, ustar.ErrBadMagic))
}

func TestIndexHeaderMissing(t *testing.T) {
	_, _, err := IndexHeader(bytes.NewReader(nil))
	assert.Check(t, is.ErrorIs(err, ErrMissingHeader))
	_, _, err = IndexHeader(bytes.NewReader(make([]byte, binaryEntrySize)))
	assert.Check(t, is.ErrorIs(err, ErrMissingHeader))
}

func TestReadIndexFor(t *testing.T) {
	data := testArchive(t)
	dir := fs.NewDir(t, "tarindex")
	f, err := os.Create(dir.Join("archive.taridx"))
	assert.NilError(t, err)
	defer func() { _ = f.Close() }()
	assert.NilError(t, WriteIndex(bytes.NewReader(data), f))

	entries, err := ReadIndexFor(f, int64(len(data)))
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 5)

	_, err = ReadIndexFor(f, int64(len(data))+tarBlockSize)
	assert.Check(t, is.ErrorIs(err, ErrIndexMismatch))

	// Streamed indexes carry no size and are accepted for any archive.
	buf := new(bytes.Buffer)
	assert.NilError(t, WriteIndex(bytes.NewReader(data), buf))
	entries, err = ReadIndexFor(bytes.NewReader(buf.Bytes()), 1)
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 5)
}
