package ustar

import (
	"archive/tar"
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

type tarEntry struct {
	name     string
	typeflag byte
	linkname string
	content  string
}

func file(name, content string) tarEntry {
	return tarEntry{name: name, typeflag: tar.TypeReg, content: content}
}

func dir(name string) tarEntry {
	return tarEntry{name: name, typeflag: tar.TypeDir}
}

func symlink(name, target string) tarEntry {
	return tarEntry{name: name, typeflag: tar.TypeSymlink, linkname: target}
}

func hardlink(name, target string) tarEntry {
	return tarEntry{name: name, typeflag: tar.TypeLink, linkname: target}
}

// fixtureT is satisfied by both *testing.T and *rapid.T.
type fixtureT interface {
	assert.TestingT
	Helper()
}

// buildArchive writes entries as a USTAR archive, terminated by the two zero blocks.
func buildArchive(t fixtureT, entries ...tarEntry) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := tar.NewWriter(buf)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Linkname: e.linkname,
			Typeflag: e.typeflag,
			Size:     int64(len(e.content)),
			Mode:     0644,
			ModTime:  time.Unix(1700000000, 0),
			Format:   tar.FormatUSTAR,
		}
		assert.NilError(t, w.WriteHeader(hdr), e.name)
		if e.content != "" {
			_, err := w.Write([]byte(e.content))
			assert.NilError(t, err, e.name)
		}
	}
	assert.NilError(t, w.Close())
	return buf.Bytes()
}

// headerOffsets returns the byte offset of every header in data, in order.
func headerOffsets(t testing.TB, data []byte) []int64 {
	t.Helper()
	entries, err := NewReader(bytes.NewReader(data)).Entries()
	assert.NilError(t, err)
	offsets := make([]int64, len(entries))
	for i, e := range entries {
		offsets[i] = e.Offset
	}
	return offsets
}

// patchHeader overwrites bytes of the header at offset. With fix set the checksum is recomputed
// afterwards, so only the patched field is wrong.
func patchHeader(data []byte, offset int64, field int, value string, fix bool) []byte {
	out := append([]byte(nil), data...)
	copy(out[offset+int64(field):], value)
	if fix {
		var b block
		copy(b[:], out[offset:offset+tarBlockSize])
		copy(out[offset+chksumOffset:], fmt.Sprintf("%06o\x00 ", b.computeChecksum()))
	}
	return out
}

// sampleEntries lays out the tree used by most tests:
//
//	dir/
//	├── a
//	├── b        (spans three blocks)
//	├── c/
//	│   └── d
//	└── e/
var sampleEntries = []tarEntry{
	dir("dir/"),
	file("dir/a", "alpha"),
	file("dir/b", strings.Repeat("0123456789abcdef", 80)),
	dir("dir/c/"),
	file("dir/c/d", "delta"),
	dir("dir/e/"),
	dir("dirx/"),
	file("dirx/f", "not a child of dir/"),
	symlink("link", "dir"),
	symlink("linkslash", "dir/"),
	symlink("chain", "link"),
	symlink("filelink", "dir/a"),
	symlink("filechain", "filelink"),
	hardlink("hard", "dir/c/d"),
	symlink("dangling", "nowhere"),
	file("empty", ""),
	{name: "fifo", typeflag: tar.TypeFifo},
}

func sampleArchive(t testing.TB) []byte {
	return buildArchive(t, sampleEntries...)
}

func contentOf(name string) string {
	for _, e := range sampleEntries {
		if e.name == name {
			return e.content
		}
	}
	return ""
}
