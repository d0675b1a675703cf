package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aurora-is-near/tarnav/src/config"
	"github.com/aurora-is-near/tarnav/src/ustar"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// errNotExist makes "exists" exit nonzero without an error message of its own.
var errNotExist = errors.New("no such entry")

func newValidateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "validate ARCHIVE",
		Short: "Check every header of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(cmd, cfg, args[0])
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			count, err := a.reader.Validate()
			if err != nil {
				return fmt.Errorf("%s: %s: %w", args[0], ustar.KindOf(err), err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d headers\n", count)
			return err
		},
	}
}

func newExistsCommand(cfg *config.Config) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "exists ARCHIVE PATH",
		Short: "Report whether an entry exists, optionally of a given type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(cmd, cfg, args[0])
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			var ok bool
			switch kind {
			case "":
				ok, err = a.reader.Exists(args[1])
			case "dir":
				ok, err = a.reader.IsDir(args[1])
			case "file":
				ok, err = a.reader.IsFile(args[1])
			case "link":
				ok, err = a.reader.IsSymlink(args[1])
			default:
				return fmt.Errorf("unknown type %q", kind)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), ok)
			if !ok {
				return errors.Wrap(errNotExist, args[1])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", "", "Require the entry to be a dir, file or link")
	return cmd
}

func newStatCommand(cfg *config.Config) *cobra.Command {
	var resolve bool
	cmd := &cobra.Command{
		Use:   "stat ARCHIVE PATH",
		Short: "Print the header of an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(cmd, cfg, args[0])
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			var e ustar.Entry
			if resolve {
				e, err = a.reader.Resolve(args[1])
			} else {
				e, err = a.reader.Stat(args[1])
			}
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, ' ', 0)
			_, _ = fmt.Fprintf(w, "name:\t%s\n", e.Name)
			_, _ = fmt.Fprintf(w, "type:\t%s (%q)\n", e.Type, e.Typeflag)
			_, _ = fmt.Fprintf(w, "size:\t%d\n", e.Size)
			_, _ = fmt.Fprintf(w, "offset:\t%d\n", e.Offset)
			if e.Linkname != "" {
				_, _ = fmt.Fprintf(w, "target:\t%s\n", e.Linkname)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVarP(&resolve, "resolve", "L", false, "Follow links to the final entry")
	return cmd
}

func newListCommand(cfg *config.Config) *cobra.Command {
	var (
		max  int
		long bool
	)
	cmd := &cobra.Command{
		Use:   "ls ARCHIVE DIR",
		Short: "List the direct children of a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(cmd, cfg, args[0])
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			names, truncated, err := a.reader.List(args[1], max)
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			out := cmd.OutOrStdout()
			if long {
				if err := writeLong(out, a.reader, names); err != nil {
					return err
				}
			} else {
				for _, name := range names {
					_, _ = fmt.Fprintln(out, name)
				}
			}
			if truncated {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "listing truncated after %d entries\n", len(names))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&max, "max", "n", -1, "Maximum number of entries to list, negative for all")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show type and size")
	return cmd
}

func writeLong(out io.Writer, r *ustar.Reader, names []string) error {
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	for _, name := range names {
		e, err := r.Stat(name)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%s\t%s\t%s", e.Type, units.HumanSize(float64(e.Size)), e.Name)
		if e.Linkname != "" {
			line += " -> " + e.Linkname
		}
		_, _ = fmt.Fprintln(w, line)
	}
	return w.Flush()
}

func newCatCommand(cfg *config.Config) *cobra.Command {
	var offset, length int64
	cmd := &cobra.Command{
		Use:   "cat ARCHIVE FILE",
		Short: "Print the content of a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(cmd, cfg, args[0])
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			_, err = copyContent(cmd.OutOrStdout(), a.reader, args[1], offset, length)
			return err
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", 0, "Byte offset to start at")
	cmd.Flags().Int64Var(&length, "length", -1, "Number of bytes to print, negative for the rest of the file")
	return cmd
}

// copyContent writes up to length bytes of the file at path, from offset on, to w. A negative
// length copies to the end of the file.
func copyContent(w io.Writer, r *ustar.Reader, path string, offset, length int64) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for length < 0 || written < length {
		dest := buf
		if length >= 0 && length-written < int64(len(dest)) {
			dest = dest[:length-written]
		}
		n, remaining, err := r.Read(path, offset+written, dest)
		if err != nil {
			return written, fmt.Errorf("%s: %w", path, err)
		}
		if _, err := w.Write(dest[:n]); err != nil {
			return written, err
		}
		written += int64(n)
		if remaining == 0 || n == 0 {
			break
		}
	}
	return written, nil
}
