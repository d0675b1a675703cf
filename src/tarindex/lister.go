// Package tarindex lists the entries of a tar archive and persists them as a compact index file,
// so that later queries can be answered without reading the archive's headers again.
package tarindex

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/aurora-is-near/tarnav/src/ustar"
)

var errListerClosed = errors.New("lister closed")

type lister struct {
	c     chan interface{}
	close int32
}

func (list *lister) closed() bool {
	return atomic.LoadInt32(&list.close) != 0
}

func (list *lister) exit() {
	atomic.StoreInt32(&list.close, 1)
	// Unblock a pending send.
	for range list.c {
	}
}

func newLister() *lister {
	return &lister{
		c: make(chan interface{}, 10),
	}
}

func (list *lister) sendEntry(e ustar.Entry) error {
	if list.closed() {
		return errListerClosed
	}
	list.c <- fromEntry(e)
	return nil
}

func (list *lister) addArchive(ra io.ReaderAt) error {
	err := ustar.NewReader(ra).Walk(list.sendEntry)
	if err == errListerClosed {
		return nil
	}
	return err
}
