package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/common"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/history"
)

func newCheckCmd() *cobra.Command {
	var useThreshold bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Make one decision and print it; exits 3 when execution is not approved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			s, err := newStack(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			var approved bool
			var out any
			if useThreshold {
				approved, err = s.threshold.ContinueExecution(cmd.Context())
				if err != nil {
					return err
				}
				out = map[string]any{
					"continueExecution": approved,
					"threshold":         cfg.Emissions.Threshold,
				}
			} else {
				resp, err := s.facade.Decide(cmd.Context())
				if err != nil {
					return err
				}
				approved = resp.IsOptimalWindowNow
				out = resp
			}

			if err := printJSON(cmd, out); err != nil {
				return err
			}
			if !approved {
				return &exitError{code: exitNotApproved}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&useThreshold, "threshold", false, "Decide by the current emissions threshold instead of the forecast window")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		region string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.History.DatabasePath == "" {
				return fmt.Errorf("decision history is disabled, set %s", common.EnvHistoryDatabasePath)
			}

			if region == "" {
				region = cfg.Window.Region
			}
			region = common.NormalizeRegion(region)
			if common.IsBlank(region) {
				return common.ErrMissingRegion
			}

			store, err := history.Open(cfg.History.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Recent(cmd.Context(), region, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, records)
		},
	}

	cmd.Flags().StringVar(&region, "region", "", "Region to list (defaults to the configured region)")
	cmd.Flags().IntVar(&limit, "limit", history.DefaultRecentLimit, "Maximum number of decisions to print")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
