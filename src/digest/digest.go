// Package digest computes content digests for the regular files of an archive.
package digest

import (
	"context"
	"fmt"
	"io"

	"github.com/aurora-is-near/tarnav/src/ustar"
	"github.com/containerd/log"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of files hashed in parallel by WriteDigests.
const DefaultConcurrency = 4

// FileDigest is the digest of one regular file.
type FileDigest struct {
	Name   string
	Size   int64
	Digest digest.Digest
}

// Digests hashes every regular file of the archive read by r, using up to concurrency parallel
// readers on the shared source. Results are in archive order.
func Digests(ctx context.Context, r *ustar.Reader, concurrency int) ([]FileDigest, error) {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	var files []ustar.Entry
	err := r.Walk(func(e ustar.Entry) error {
		if e.Type == ustar.EntryTypeFile {
			files = append(files, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	results := make([]FileDigest, len(files))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for i, e := range files {
		i, e := i, e
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d, err := fileDigest(r, e)
			if err != nil {
				return fmt.Errorf("digest of %s: %w", e.Name, err)
			}
			results[i] = FileDigest{Name: e.Name, Size: e.Size, Digest: d}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	log.G(ctx).WithField("files", len(results)).Debug("archive digested")
	return results, nil
}

func fileDigest(r *ustar.Reader, e ustar.Entry) (digest.Digest, error) {
	sr, err := r.Open(e.Name)
	if err != nil {
		return "", err
	}
	digester := digest.Canonical.Digester()
	if _, err := io.Copy(digester.Hash(), sr); err != nil {
		return "", err
	}
	return digester.Digest(), nil
}

// WriteDigests writes one "<digest>  <name>" line per regular file of the archive to w.
func WriteDigests(ctx context.Context, r *ustar.Reader, w io.Writer) error {
	results, err := Digests(ctx, r, DefaultConcurrency)
	if err != nil {
		return err
	}
	for _, fd := range results {
		if _, err := fmt.Fprintf(w, "%s  %s\n", fd.Digest, fd.Name); err != nil {
			return err
		}
	}
	return nil
}
