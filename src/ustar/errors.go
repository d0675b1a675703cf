package ustar

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	// ErrBadMagic is returned by Validate when a header lacks the "ustar\x00" magic.
	ErrBadMagic = fmt.Errorf("invalid magic value: %w", errdefs.ErrDataLoss)
	// ErrBadVersion is returned by Validate when neither version byte is '0'.
	ErrBadVersion = fmt.Errorf("invalid version value: %w", errdefs.ErrDataLoss)
	// ErrBadChecksum is returned by Validate when a stored checksum does not match the header bytes.
	ErrBadChecksum = fmt.Errorf("invalid checksum: %w", errdefs.ErrDataLoss)
	// ErrSymlinkLoop is returned when link resolution revisits a name or exceeds the hop limit.
	ErrSymlinkLoop = fmt.Errorf("too many levels of symbolic links: %w", errdefs.ErrDataLoss)

	ErrNotFound         = fmt.Errorf("no such entry: %w", errdefs.ErrNotFound)
	ErrNotADirectory    = fmt.Errorf("not a directory: %w", errdefs.ErrInvalidArgument)
	ErrNotAFile         = fmt.Errorf("not a regular file: %w", errdefs.ErrInvalidArgument)
	ErrOffsetOutOfRange = fmt.Errorf("offset outside of file: %w", errdefs.ErrOutOfRange)
)

// ErrorKind classifies the outcome of an operation.
type ErrorKind int

const (
	OK ErrorKind = iota
	BadMagic
	BadVersion
	BadChecksum
	NotFound
	NotADirectory
	NotAFile
	OffsetOutOfRange
	SymlinkLoop
	IOFailure
)

var kindNames = [...]string{
	OK:               "ok",
	BadMagic:         "bad magic",
	BadVersion:       "bad version",
	BadChecksum:      "bad checksum",
	NotFound:         "not found",
	NotADirectory:    "not a directory",
	NotAFile:         "not a file",
	OffsetOutOfRange: "offset out of range",
	SymlinkLoop:      "symlink loop",
	IOFailure:        "i/o failure",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return kindNames[k]
}

var kindErrors = []struct {
	err  error
	kind ErrorKind
}{
	{ErrBadMagic, BadMagic},
	{ErrBadVersion, BadVersion},
	{ErrBadChecksum, BadChecksum},
	{ErrNotFound, NotFound},
	{ErrNotADirectory, NotADirectory},
	{ErrNotAFile, NotAFile},
	{ErrOffsetOutOfRange, OffsetOutOfRange},
	{ErrSymlinkLoop, SymlinkLoop},
}

// KindOf maps an error returned by this package to its ErrorKind. Errors not raised by the
// navigator itself come from the byte source and are reported as IOFailure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return OK
	}
	for _, ke := range kindErrors {
		if errors.Is(err, ke.err) {
			return ke.kind
		}
	}
	return IOFailure
}
