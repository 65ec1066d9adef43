package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/app"
)

var (
	meterStart       string
	meterEnd         string
	meterStatus      string
	meterRate        string
	meterClientType  string
	meterHolder      int64
	meterOperation   int64
	meterDescription string
	meterReference   string
)

var meterCmd = &cobra.Command{
	Use:   "meter",
	Short: "Version and inspect meter configurations",
}

var meterTimelineCmd = &cobra.Command{
	Use:   "timeline <ean>",
	Short: "Show the active, past and future configurations of a meter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reference, err := parseDay(meterReference)
		if err != nil {
			return err
		}
		return withEngine(cmd, func(ctx context.Context, engine *app.App) error {
			tl, err := engine.Meters.Timeline(ctx, args[0], reference)
			if err != nil {
				return err
			}
			return printJSON(cmd, tl)
		})
	},
}

var meterPatchCmd = &cobra.Command{
	Use:   "patch <ean>",
	Short: "Append a configuration without closing the current one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMeterVersion(cmd, args[0], false)
	},
}

var meterReplaceCmd = &cobra.Command{
	Use:   "replace <ean>",
	Short: "Close open configurations at --start and append a new one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMeterVersion(cmd, args[0], true)
	},
}

func init() {
	meterTimelineCmd.Flags().StringVar(&meterReference, "at", "", "reference day YYYY-MM-DD (default today)")

	for _, c := range []*cobra.Command{meterPatchCmd, meterReplaceCmd} {
		c.Flags().StringVar(&meterStart, "start", "", "start day YYYY-MM-DD")
		c.Flags().StringVar(&meterEnd, "end", "", "optional end day YYYY-MM-DD")
		c.Flags().StringVar(&meterStatus, "status", "ACTIVE", "ACTIVE, INACTIVE, WAITING_GRID_OPERATOR or WAITING_MANAGER")
		c.Flags().StringVar(&meterRate, "rate", "SIMPLE", "SIMPLE, DUAL or NIGHT_ONLY")
		c.Flags().StringVar(&meterClientType, "client-type", "RESIDENTIAL", "RESIDENTIAL, PROFESSIONAL or INDUSTRIAL")
		c.Flags().Int64Var(&meterHolder, "holder", 0, "holder id")
		c.Flags().Int64Var(&meterOperation, "sharing-operation", 0, "sharing operation id")
		c.Flags().StringVar(&meterDescription, "description", "", "free text")
		_ = c.MarkFlagRequired("start")
	}

	meterCmd.AddCommand(meterTimelineCmd, meterPatchCmd, meterReplaceCmd)
	rootCmd.AddCommand(meterCmd)
}

func runMeterVersion(cmd *cobra.Command, ean string, replace bool) error {
	cfg, err := meterConfiguration(ean)
	if err != nil {
		return err
	}
	return withEngine(cmd, func(ctx context.Context, engine *app.App) error {
		var created *domain.MeterConfiguration
		if replace {
			created, err = engine.Meters.ReplaceConfiguration(ctx, cfg)
		} else {
			created, err = engine.Meters.PatchConfiguration(ctx, cfg)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd, created)
	})
}

func meterConfiguration(ean string) (domain.MeterConfiguration, error) {
	cfg := domain.MeterConfiguration{EAN: ean, Description: meterDescription}

	start, err := parseDay(meterStart)
	if err != nil {
		return cfg, err
	}
	cfg.StartDate = start
	if meterEnd != "" {
		end, err := parseDay(meterEnd)
		if err != nil {
			return cfg, err
		}
		cfg.EndDate = &end
	}
	if cfg.Status, err = lookup("status", meterStatus, map[string]domain.MeterStatus{
		"ACTIVE":                domain.MeterStatusActive,
		"INACTIVE":              domain.MeterStatusInactive,
		"WAITING_GRID_OPERATOR": domain.MeterStatusWaitingGridOperator,
		"WAITING_MANAGER":       domain.MeterStatusWaitingManager,
	}); err != nil {
		return cfg, err
	}
	if cfg.Rate, err = lookup("rate", meterRate, map[string]domain.TariffRate{
		"SIMPLE":     domain.TariffSimple,
		"DUAL":       domain.TariffDual,
		"NIGHT_ONLY": domain.TariffNightOnly,
	}); err != nil {
		return cfg, err
	}
	if cfg.ClientType, err = lookup("client type", meterClientType, map[string]domain.ClientType{
		"RESIDENTIAL":  domain.ClientResidential,
		"PROFESSIONAL": domain.ClientProfessional,
		"INDUSTRIAL":   domain.ClientIndustrial,
	}); err != nil {
		return cfg, err
	}
	if meterHolder > 0 {
		cfg.HolderID = &meterHolder
	}
	if meterOperation > 0 {
		cfg.SharingOperationID = &meterOperation
	}
	return cfg, nil
}

func lookup[T any](what, value string, names map[string]T) (T, error) {
	v, ok := names[strings.ToUpper(strings.TrimSpace(value))]
	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown %s %q", what, value)
	}
	return v, nil
}
