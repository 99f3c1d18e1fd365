package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/dwizi/flowy/internal/client"
	"github.com/dwizi/flowy/internal/config"
	"github.com/dwizi/flowy/internal/launcher"
)

func newQueryCommand(logger *slog.Logger) *cobra.Command {
	var (
		direct   bool
		jsonMode bool
	)
	cmd := &cobra.Command{
		Use:   "query [path]",
		Short: "List launcher items for a query such as \"Work > Inbox\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			backend, closeBackend, err := openBackend(ctx, direct, false, logger)
			if err != nil {
				return err
			}
			defer closeBackend()

			text := strings.Join(args, " ")
			items, err := backend.Query(ctx, text)
			if err != nil {
				return err
			}
			if jsonMode {
				return printJSON(cmd, client.QueryResponse{Query: text, Items: items})
			}
			return printItems(cmd, items)
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "load the tree in-process instead of asking flowy serve")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "emit JSON")
	return cmd
}

func newInvokeCommand(logger *slog.Logger) *cobra.Command {
	var (
		direct  bool
		wait    bool
		request client.ActionRequest
		timeout int
	)
	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run an item action, the way selecting it in the launcher would",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(request.ItemID) == "" || strings.TrimSpace(request.ActionID) == "" {
				return fmt.Errorf("--item and --action are required")
			}
			request.Wait = wait || direct
			return runInvoke(cmd, logger, direct, timeout, request)
		},
	}
	cmd.Flags().StringVarP(&request.Query, "query", "q", "", "query the item was listed under")
	cmd.Flags().StringVar(&request.ItemID, "item", "", "item id from flowy query")
	cmd.Flags().StringVar(&request.ActionID, "action", "", "action id: tcomplete, edit, remove, create or reauth")
	cmd.Flags().StringVar(&request.Input, "input", "", "action input, the new name for edit")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the remote call and the follow-up refresh")
	cmd.Flags().BoolVar(&direct, "direct", false, "apply the action in-process; implies --wait")
	cmd.Flags().IntVar(&timeout, "timeout-sec", 120, "request timeout in seconds")
	return cmd
}

func newAuthCommand(logger *slog.Logger) *cobra.Command {
	var (
		direct  bool
		timeout int
	)
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in to WorkFlowy again through the CLI login flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runInvoke(cmd, logger, direct, timeout, client.ActionRequest{
				Query:    cfg.AuthToken,
				ItemID:   launcher.ItemReauth,
				ActionID: launcher.ActionReauth,
				Wait:     true,
			})
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "run the login in-process instead of through flowy serve")
	cmd.Flags().IntVar(&timeout, "timeout-sec", 300, "request timeout in seconds")
	return cmd
}

func runInvoke(cmd *cobra.Command, logger *slog.Logger, direct bool, timeoutSec int, request client.ActionRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), boundedTimeout(timeoutSec))
	defer cancel()
	backend, closeBackend, err := openBackend(ctx, direct, false, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	if remote, ok := backend.(*client.Client); ok {
		// The HTTP client's own timeout must not cut a waiting request short.
		backend = remote.WithTimeout(boundedTimeout(timeoutSec))
	}
	result, err := backend.Invoke(ctx, request)
	if err != nil {
		return err
	}
	if err := printJSON(cmd, result); err != nil {
		return err
	}
	if result.Failed() {
		return fmt.Errorf("%s failed: %s", result.Kind, result.Error)
	}
	return nil
}

func printItems(cmd *cobra.Command, items []launcher.Item) error {
	if len(items) == 0 {
		return nil
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), renderItems(items))
	return err
}

// renderItems lays items out as id, title and action ids. Widths are
// measured in cells, so struck-through titles stay aligned.
func renderItems(items []launcher.Item) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		actions := make([]string, 0, len(item.Actions))
		for _, action := range item.Actions {
			actions = append(actions, action.ID)
		}
		rows = append(rows, []string{item.ID, item.Title, strings.Join(actions, ",")})
	}
	cell := lipgloss.NewStyle().PaddingRight(2)
	return table.New().
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		BorderRow(false).
		StyleFunc(func(row, col int) lipgloss.Style {
			return cell
		}).
		Rows(rows...).
		Render()
}

func boundedTimeout(input int) time.Duration {
	if input <= 0 {
		return 120 * time.Second
	}
	if input > 3600 {
		return time.Hour
	}
	return time.Duration(input) * time.Second
}
