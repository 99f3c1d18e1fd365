package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwizi/flowy/internal/cache"
	"github.com/dwizi/flowy/internal/client"
	"github.com/dwizi/flowy/internal/config"
	"github.com/dwizi/flowy/internal/store"
)

func newTreeCommand(logger *slog.Logger) *cobra.Command {
	_ = logger
	return &cobra.Command{
		Use:   "tree [path]",
		Short: "Print the cached outline, or the children at a path",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := remoteClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			response, err := api.Tree(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd, response)
		},
	}
}

func newRefreshCommand(logger *slog.Logger) *cobra.Command {
	_ = logger
	return &cobra.Command{
		Use:   "refresh",
		Short: "Ask flowy serve to refetch the outline now",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := remoteClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			status, err := api.WithTimeout(2*time.Minute).Refresh(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}
}

func newStatusCommand(logger *slog.Logger) *cobra.Command {
	_ = logger
	return &cobra.Command{
		Use:   "status",
		Short: "Show cache and refresh status",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := remoteClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			status, err := api.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}
}

func newHealthCommand(logger *slog.Logger) *cobra.Command {
	_ = logger
	return &cobra.Command{
		Use:   "health",
		Short: "Show component heartbeats of flowy serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := remoteClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			snapshot, err := api.Health(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, snapshot)
		},
	}
}

func newJournalCommand(logger *slog.Logger) *cobra.Command {
	_ = logger
	var (
		direct bool
		filter client.JournalFilter
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List journaled mutations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if direct {
				items, err := readJournal(ctx, filter)
				if err != nil {
					return err
				}
				return printJSON(cmd, items)
			}
			api, err := remoteClient()
			if err != nil {
				return err
			}
			items, err := api.Journal(ctx, filter)
			if err != nil {
				return err
			}
			return printJSON(cmd, items)
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "read the journal database instead of asking flowy serve")
	cmd.Flags().StringVar(&filter.Kind, "kind", "", "only mutations of this kind")
	cmd.Flags().StringVar(&filter.NodeID, "node", "", "only mutations of this node id")
	cmd.Flags().BoolVar(&filter.FailedOnly, "failed", false, "only failed mutations")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "max entries")
	return cmd
}

func newEventsCommand(logger *slog.Logger) *cobra.Command {
	_ = logger
	return &cobra.Command{
		Use:   "events",
		Short: "Stream cache change events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := remoteClient()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return api.Events(ctx, func(event cache.Event) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tv%d\n", event.At.Format(time.RFC3339), event.Kind, event.Version)
			})
		},
	}
}

func remoteClient() (*client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return client.New(cfg), nil
}

func readJournal(ctx context.Context, filter client.JournalFilter) ([]store.Mutation, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.JournalPath); err != nil {
		return nil, fmt.Errorf("journal not found at %s: %w", cfg.JournalPath, err)
	}
	sqlStore, err := store.New(cfg.JournalPath)
	if err != nil {
		return nil, err
	}
	defer sqlStore.Close()
	return sqlStore.ListMutations(ctx, store.ListMutationsInput{
		Kind:       filter.Kind,
		NodeID:     filter.NodeID,
		FailedOnly: filter.FailedOnly,
		Limit:      filter.Limit,
	})
}
