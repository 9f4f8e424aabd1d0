package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"freesync/client"
	"freesync/internal/diff"
	"freesync/internal/merkle"
	"freesync/internal/watch"
)

func buildCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Snapshot the directory and save it on the current branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := merkle.Build(a.store.Root())
			if err != nil {
				return fmt.Errorf("building snapshot: %w", err)
			}
			if err := a.store.SaveTree(tree); err != nil {
				return fmt.Errorf("saving snapshot: %w", err)
			}
			branch, h, err := a.store.Head()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Saved %s on %s (%d files)\n", h, branch, merkle.CountLeaves(tree))
			return nil
		},
	}
}

// changes compares the saved snapshot with the working directory.
func (a *app) changes() (*merkle.Tree, []merkle.Diff, error) {
	saved, err := a.store.ReadTree()
	if err != nil {
		return nil, nil, fmt.Errorf("reading snapshot: %w", err)
	}
	current, err := merkle.Build(a.store.Root())
	if err != nil {
		return nil, nil, fmt.Errorf("building snapshot: %w", err)
	}
	diffs, err := merkle.FindDifferences(saved, current)
	if err != nil {
		return nil, nil, err
	}
	return saved, diffs, nil
}

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current branch and what changed since its snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			branch, h, err := a.store.Head()
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(a.out, "No snapshot yet; run 'freesync build'")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "On branch %s\nSnapshot %s\n", branch, h)

			saved, diffs, err := a.changes()
			if err != nil {
				return err
			}
			stats := diff.Summarize(saved, diffs)
			if stats.Empty() {
				fmt.Fprintln(a.out, "Working directory matches the snapshot")
				return nil
			}
			fmt.Fprintln(a.out)
			if err := diff.Format(a.out, diffs, diff.Options{Root: a.store.Root()}); err != nil {
				return err
			}
			lines, err := diff.ChangedLines(saved, diffs)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "\n%s, %s\n", stats, lines)
			return nil
		},
	}
}

func blobCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "blob <hash|path>",
		Short: "Print a blob object as text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.store.BlobText(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, text)
			return nil
		},
	}
}

func diffCmd(a *app) *cobra.Command {
	var (
		text    bool
		unified int
	)
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "List changes between the saved snapshot and the directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			saved, diffs, err := a.changes()
			if err != nil {
				return err
			}
			err = diff.Format(a.out, diffs, diff.Options{
				Root:    a.store.Root(),
				Text:    text,
				Base:    saved,
				Context: unified,
			})
			if err != nil || len(diffs) == 0 {
				return err
			}
			fmt.Fprintln(a.out, diff.Summarize(saved, diffs))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&text, "text", "t", false, "Show unified diffs of modified files")
	cmd.Flags().IntVarP(&unified, "unified", "U", diff.DefaultContext, "Lines of context")
	return cmd
}

func branchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "List branches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current, _, err := a.store.Head()
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			names, err := a.store.Branches()
			if err != nil {
				return err
			}
			marker := color.New(color.FgGreen)
			for _, name := range names {
				if name == current {
					marker.Fprintf(a.out, "* %s\n", name)
				} else {
					fmt.Fprintf(a.out, "  %s\n", name)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "new <name>",
		Short: "Create a branch at the current snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.CreateBranch(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created branch %s\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "switch <name>",
		Short: "Make an existing branch current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.SwitchBranch(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Switched to branch %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func logCmd(a *app) *cobra.Command {
	var (
		all   bool
		limit int
		prune int
	)
	cmd := &cobra.Command{
		Use:   "log [id]",
		Short: "List journaled snapshots, newest first, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.journal == nil {
				return errors.New("journal disabled; pass --journal or set store.journal")
			}
			if len(args) == 1 {
				snap, err := a.journal.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Snapshot %s\nBranch   %s\nRoot     %s\nFiles    %d\nDate     %s\n",
					snap.ID, snap.Branch, snap.Root, snap.Files, snap.CreatedAt.Local().Format(time.DateTime))
				return nil
			}

			branch := ""
			if !all {
				current, _, err := a.store.Head()
				if err != nil {
					return err
				}
				branch = current
			}

			if cmd.Flags().Changed("prune") {
				removed, err := a.journal.Prune(branch, prune)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Pruned %d snapshots\n", removed)
				return nil
			}

			snaps, err := a.journal.List(branch)
			if err != nil {
				return err
			}

			id := color.New(color.FgYellow)
			for i, snap := range snaps {
				if limit > 0 && i == limit {
					break
				}
				id.Fprintf(a.out, "%s", snap.ID)
				fmt.Fprintf(a.out, " %s %-10s %s %d files\n",
					snap.CreatedAt.Local().Format(time.DateTime), snap.Branch, snap.Root[:12], snap.Files)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include every branch")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most n snapshots")
	cmd.Flags().IntVar(&prune, "prune", 0, "Delete all but the newest n snapshots")
	return cmd
}

func watchCmd(a *app) *cobra.Command {
	var (
		debounce time.Duration
		exclude  []string
		text     bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Save a new snapshot whenever the directory changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := watch.New(a.store, a.logger.Logger, func(prev, next *merkle.Tree, diffs []merkle.Diff) {
				fmt.Fprintf(a.out, "%s %s\n", time.Now().Format(time.TimeOnly), next.Hash().String()[:12])
				err := diff.Format(a.out, diffs, diff.Options{Root: a.store.Root(), Text: text, Base: prev})
				if err != nil {
					a.logger.Error(err.Error())
				}
			}, watch.WithDebounce(debounce), watch.WithExclude(exclude...))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Watching %s (Ctrl-C to stop)\n", a.store.Root())
			return w.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before rescanning")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Entry names to ignore")
	cmd.Flags().BoolVarP(&text, "text", "t", false, "Show unified diffs of modified files")
	return cmd
}

func sendCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "send <addr> <line...>",
		Short: "Send request lines to a sync server",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			n, err := client.New(args[0]).Send(ctx, args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Server acknowledged %d lines\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	return cmd
}
