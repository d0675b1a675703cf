package main

import (
	"context"
	"io"
	"os"

	"github.com/aurora-is-near/tarnav/src/config"
	"github.com/aurora-is-near/tarnav/src/deliver"
	"github.com/aurora-is-near/tarnav/src/digest"
	"github.com/aurora-is-near/tarnav/src/tarindex"
	"github.com/aurora-is-near/tarnav/src/util"
	"github.com/containerd/log"
	"github.com/spf13/cobra"
)

func newIndexCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "index ARCHIVE INDEXFILE",
		Short: "Write an index of a valid archive, \"-\" for standard output",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			stat, err := f.Stat()
			if err != nil {
				return err
			}
			out, closeOut, err := util.Output(args[1], force)
			if err != nil {
				return err
			}
			if err := tarindex.WriteIndex(io.NewSectionReader(f, 0, stat.Size()), out); err != nil {
				_ = closeOut()
				if args[1] != "-" {
					_ = os.Remove(args[1])
				}
				return err
			}
			log.G(cmd.Context()).WithField("index", args[1]).Info("index written")
			return closeOut()
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace an existing index file")
	return cmd
}

func newDigestCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "digest ARCHIVE",
		Short: "Print a SHA-256 digest for every regular file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(cmd, cfg, args[0])
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return digest.WriteDigests(cmd.Context(), a.reader, cmd.OutOrStdout())
		},
	}
}

func newServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the archives of a directory over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return deliver.Serve(ctx, cfg)
		},
	}
	cfg.AddServerFlags(cmd.Flags())
	return cmd
}
