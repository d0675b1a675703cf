// Command tarnav inspects and serves uncompressed USTAR archives without extracting them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aurora-is-near/tarnav/src/config"
	"github.com/aurora-is-near/tarnav/src/tarindex"
	"github.com/aurora-is-near/tarnav/src/ustar"
	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "tarnav: %s\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	if err := newRootCommand(cfg).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "tarnav",
		Short:        "Navigate USTAR archives without extracting them",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return setupLogging(cfg)
		},
	}
	cfg.AddLogFlags(cmd.PersistentFlags())
	cfg.AddReaderFlags(cmd.PersistentFlags())
	cmd.PersistentFlags().String("index", "", "Index file written by \"tarnav index\" to answer lookups from")

	cmd.AddCommand(
		newValidateCommand(cfg),
		newExistsCommand(cfg),
		newStatCommand(cfg),
		newListCommand(cfg),
		newCatCommand(cfg),
		newIndexCommand(),
		newDigestCommand(cfg),
		newServeCommand(cfg),
	)
	return cmd
}

func setupLogging(cfg *config.Config) error {
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return err
	}
	switch cfg.LogFormat {
	case "json":
		return log.SetFormat(log.JSONFormat)
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: log.RFC3339NanoFixed,
		})
	}
	return nil
}

// archive holds an open archive file and a Reader over it.
type archive struct {
	f      *os.File
	reader *ustar.Reader
}

func (a *archive) Close() error {
	return a.f.Close()
}

// openArchive opens the archive at name. When the --index flag names an index file, lookups are
// answered from it.
func openArchive(cmd *cobra.Command, cfg *config.Config, name string) (*archive, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	opts := []ustar.Option{ustar.OptMaxLinkDepth(cfg.MaxLinkDepth)}
	indexFile, _ := cmd.Flags().GetString("index")
	if indexFile != "" {
		stat, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		entries, err := readIndex(indexFile, stat.Size())
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("index %s: %w", indexFile, err)
		}
		opts = append(opts, ustar.OptIndex(entries))
		log.G(cmd.Context()).WithFields(log.Fields{
			"index":   indexFile,
			"entries": len(entries),
		}).Debug("using index")
	}
	return &archive{f: f, reader: ustar.NewReader(f, opts...)}, nil
}

func readIndex(name string, archiveSize int64) ([]ustar.Entry, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return tarindex.ReadIndexFor(f, archiveSize)
}
