package ustar

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"testing"

	"github.com/cpuguy83/tar2go"
	"gotest.tools/v3/assert"
	"pgregory.net/rapid"
)

// genTree draws a small tree: a root directory with files and one sub-directory.
func genTree(t *rapid.T) []tarEntry {
	names := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,8}`), 1, 8, rapid.ID[string]).Draw(t, "names")
	entries := []tarEntry{dir("root/"), dir("root/sub/")}
	for i, n := range names {
		content := rapid.SliceOfN(rapid.Byte(), 0, 3*int(tarBlockSize)).Draw(t, fmt.Sprintf("content%d", i))
		parent := "root/"
		if rapid.Bool().Draw(t, fmt.Sprintf("nested%d", i)) {
			parent = "root/sub/"
		}
		entries = append(entries, file(parent+n, string(content)))
	}
	return entries
}

func TestPropertyValidateCount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		entries := genTree(t)
		n, err := NewReader(bytes.NewReader(buildArchive(t, entries...))).Validate()
		if err != nil {
			t.Fatalf("Validate: %s", err)
		}
		if n != len(entries) {
			t.Fatalf("Validate counted %d headers, archive has %d", n, len(entries))
		}
	})
}

func TestPropertyChunkedRead(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		entries := genTree(t)
		r := NewReader(bytes.NewReader(buildArchive(t, entries...)))
		chunk := rapid.IntRange(1, 2*int(tarBlockSize)).Draw(t, "chunk")
		for _, e := range entries {
			if e.typeflag != TypeReg {
				continue
			}
			var got []byte
			var offset int64
			buf := make([]byte, chunk)
			for {
				n, rem, err := r.Read(e.name, offset, buf)
				if err != nil {
					t.Fatalf("Read %s at %d: %s", e.name, offset, err)
				}
				if want := int64(len(e.content)) - offset - int64(n); rem != want {
					t.Fatalf("Read %s at %d: remaining %d, want %d", e.name, offset, rem, want)
				}
				got = append(got, buf[:n]...)
				offset += int64(n)
				if rem == 0 {
					break
				}
			}
			if !bytes.Equal(got, []byte(e.content)) {
				t.Fatalf("content of %s does not round trip", e.name)
			}
			if _, _, err := r.Read(e.name, offset+1, buf); KindOf(err) != OffsetOutOfRange {
				t.Fatalf("Read past end of %s: %v", e.name, err)
			}
		}
	})
}

func TestPropertyListDirectChildren(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		entries := genTree(t)
		r := NewReader(bytes.NewReader(buildArchive(t, entries...)))
		got, truncated, err := r.List("root/", -1)
		if err != nil || truncated {
			t.Fatalf("List: %v %v", err, truncated)
		}
		want := []string{"root/sub/"}
		for _, e := range entries[2:] {
			if isChild("root/", e.name) {
				want = append(want, e.name)
			}
		}
		sort.Strings(got)
		sort.Strings(want)
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("List = %v, want %v", got, want)
		}
	})
}

// TestContentMatchesTar2go compares file contents against an independent tar index.
func TestContentMatchesTar2go(t *testing.T) {
	data := sampleArchive(t)
	r := NewReader(bytes.NewReader(data))
	idx := tar2go.NewIndex(bytes.NewReader(data))
	seen := 0
	err := idx.Update(io.Discard, func(name string, ra tar2go.ReaderAtSized) (tar2go.ReaderAtSized, bool, error) {
		ok, err := r.IsFile(name)
		if err != nil || !ok {
			return ra, false, err
		}
		want, err := io.ReadAll(io.NewSectionReader(ra, 0, ra.Size()))
		if err != nil {
			return ra, false, err
		}
		got := make([]byte, ra.Size()+1)
		n, rem, err := r.Read(name, 0, got)
		assert.NilError(t, err, name)
		assert.Equal(t, rem, int64(0), name)
		assert.Check(t, bytes.Equal(got[:n], want), name)
		seen++
		return ra, false, nil
	})
	assert.NilError(t, err)
	assert.Equal(t, seen, 4)
}
