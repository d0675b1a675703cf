package util

import (
	"io"
	"os"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"
)

func TestCreateFile(t *testing.T) {
	dir := fs.NewDir(t, "tarnav-util", fs.WithFile("existing", "old content"))

	_, err := CreateFile(dir.Join("existing"), false)
	assert.Assert(t, os.IsExist(err), "got %v", err)

	f, err := CreateFile(dir.Join("existing"), true)
	assert.NilError(t, err)
	_, err = f.WriteString("new")
	assert.NilError(t, err)
	assert.NilError(t, f.Close())
	got, err := os.ReadFile(dir.Join("existing"))
	assert.NilError(t, err)
	assert.Equal(t, string(got), "new")

	f, err = CreateFile(dir.Join("fresh"), false)
	assert.NilError(t, err)
	assert.NilError(t, f.Close())
}

func TestOutput(t *testing.T) {
	w, closeFn, err := Output("-", false)
	assert.NilError(t, err)
	_, seekable := w.(io.Seeker)
	assert.Assert(t, !seekable)
	assert.NilError(t, closeFn())

	dir := fs.NewDir(t, "tarnav-util")
	w, closeFn, err = Output(dir.Join("out"), false)
	assert.NilError(t, err)
	_, seekable = w.(io.Seeker)
	assert.Assert(t, seekable)
	_, err = io.WriteString(w, "data")
	assert.NilError(t, err)
	assert.NilError(t, closeFn())
	got, err := os.ReadFile(dir.Join("out"))
	assert.NilError(t, err)
	assert.Equal(t, string(got), "data")
}
