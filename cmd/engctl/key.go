package main

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/app"
)

var keyDate string

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Drive the allocation key workflow of a sharing operation",
}

type keyTransition func(ctx context.Context, engine *app.App, operationID, keyID int64, day time.Time) (*domain.SharingOperationKey, error)

func transitionCmd(use, short string, fn keyTransition) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " <operation-id> <key-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			operationID, keyID, err := ids(args)
			if err != nil {
				return err
			}
			day, err := parseDay(keyDate)
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, engine *app.App) error {
				key, err := fn(ctx, engine, operationID, keyID, day)
				if err != nil {
					return err
				}
				return printJSON(cmd, key)
			})
		},
	}
	c.Flags().StringVar(&keyDate, "date", "", "effective day YYYY-MM-DD (default today)")
	return c
}

var keySummaryCmd = &cobra.Command{
	Use:   "summary <operation-id>",
	Short: "Show the active, pending and past keys of a sharing operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		operationID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return domain.Invalidf("invalid operation id %q", args[0])
		}
		return withEngine(cmd, func(ctx context.Context, engine *app.App) error {
			summary, err := engine.Sharing.Summary(ctx, operationID)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		})
	},
}

func init() {
	keyCmd.AddCommand(
		transitionCmd("propose", "Attach a key as PENDING from --date", func(ctx context.Context, e *app.App, op, key int64, day time.Time) (*domain.SharingOperationKey, error) {
			return e.Sharing.Propose(ctx, op, key, day)
		}),
		transitionCmd("approve", "Approve a pending key, closing the active one at --date", func(ctx context.Context, e *app.App, op, key int64, day time.Time) (*domain.SharingOperationKey, error) {
			return e.Sharing.Approve(ctx, op, key, day)
		}),
		transitionCmd("reject", "Reject a pending key at --date", func(ctx context.Context, e *app.App, op, key int64, day time.Time) (*domain.SharingOperationKey, error) {
			return e.Sharing.Reject(ctx, op, key, day)
		}),
		transitionCmd("close", "End an open key at --date without replacement", func(ctx context.Context, e *app.App, op, key int64, day time.Time) (*domain.SharingOperationKey, error) {
			return e.Sharing.Close(ctx, op, key, day)
		}),
		keySummaryCmd,
	)
	rootCmd.AddCommand(keyCmd)
}

func ids(args []string) (int64, int64, error) {
	operationID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, domain.Invalidf("invalid operation id %q", args[0])
	}
	keyID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, domain.Invalidf("invalid key id %q", args[1])
	}
	return operationID, keyID, nil
}
