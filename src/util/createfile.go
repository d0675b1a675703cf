package util

import (
	"io"
	"os"
)

// CreateFile creates filename for writing. An existing file is only replaced when overwrite is set.
func CreateFile(filename string, overwrite bool) (*os.File, error) {
	flags := os.O_CREATE | os.O_RDWR
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	return os.OpenFile(filename, flags, 0640)
}

// Output opens the destination named by a command line argument. "-" is standard output, which
// close leaves open. Standard output is never returned as an io.Seeker, since it may be a pipe.
func Output(name string, overwrite bool) (w io.Writer, close func() error, err error) {
	if name == "-" {
		return struct{ io.Writer }{os.Stdout}, func() error { return nil }, nil
	}
	f, err := CreateFile(name, overwrite)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
