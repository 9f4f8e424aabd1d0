package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"freesync/internal/config"
	"freesync/internal/logging"
	"freesync/internal/storage"
	"freesync/internal/store"
)

// app holds what every command needs once flags and config are resolved.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	logger  *logging.Logger
	store   *store.Store
	journal *storage.Journal
	out     io.Writer
}

func (a *app) close() {
	if a.journal != nil {
		a.journal.Close()
		a.journal = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func newRootCmd(out io.Writer) (*cobra.Command, *app) {
	a := &app{v: config.New(), out: out}
	// Commands print their own results; logs are for problems.
	a.v.SetDefault("log.level", "warn")

	rootCmd := &cobra.Command{
		Use:   "freesync",
		Short: "FreeSync snapshots directories into a content-addressed store",
		Long: `FreeSync records the state of a directory as a Merkle tree of
content-addressed objects under .freesync, tracks named branches and shows
what changed between snapshots.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
	}
	rootCmd.SetOut(out)

	flags := rootCmd.PersistentFlags()
	flags.StringP("dir", "C", ".", "Directory to snapshot")
	flags.String("config", "", "Config file (default ./freesync.yaml)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("journal", false, "Record snapshots in the journal")
	a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	a.v.BindPFlag("store.journal", flags.Lookup("journal"))

	rootCmd.AddCommand(
		buildCmd(a),
		statusCmd(a),
		blobCmd(a),
		diffCmd(a),
		branchCmd(a),
		logCmd(a),
		watchCmd(a),
		sendCmd(a),
		notImplementedCmd("fetch", "Fetch snapshots from a remote"),
		notImplementedCmd("pull", "Fetch and apply snapshots from a remote"),
		notImplementedCmd("push", "Send snapshots to a remote"),
	)
	return rootCmd, a
}

func (a *app) open(cmd *cobra.Command) error {
	cfgPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(a.v, cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	a.logger = logger

	dir, _ := cmd.Flags().GetString("dir")
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", dir, err)
	}

	opts := []store.Option{store.WithCacheSize(cfg.Store.CacheSize)}
	if cfg.Store.Journal {
		if err := os.MkdirAll(store.JournalPath(root), 0755); err != nil {
			return fmt.Errorf("creating journal directory: %w", err)
		}
		journal, err := storage.OpenJournal(store.JournalPath(root))
		if err != nil {
			return err
		}
		a.journal = journal
		opts = append(opts, store.WithJournal(journal))
	}

	st, err := store.New(root, opts...)
	if err != nil {
		return err
	}
	a.store = st
	return nil
}

func notImplementedCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("%s: not implemented", name)
		},
	}
}

func main() {
	rootCmd, a := newRootCmd(os.Stdout)
	err := rootCmd.Execute()
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
