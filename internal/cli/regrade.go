package cli

import (
	"context"
	"fmt"
	"time"

	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/logging"

	"github.com/spf13/cobra"
)

// NewRegradeCmd re-runs grading for one completed attempt.
func NewRegradeCmd(configPath *string) *cobra.Command {
	var attemptID string
	cmd := &cobra.Command{
		Use:   "regrade",
		Short: "Re-grade a completed attempt against the current quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegrade(cmd, *configPath, attemptID)
		},
	}
	cmd.Flags().StringVar(&attemptID, "attempt", "", "attempt ID to re-grade")
	_ = cmd.MarkFlagRequired("attempt")
	return cmd
}

func runRegrade(cmd *cobra.Command, configPath, attemptID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("regrade needs postgres: in-memory attempts do not outlive the server")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := buildDeps(ctx, cfg, logging.New(serviceName, cfg.Log.Level))
	if err != nil {
		return err
	}
	defer d.Close()

	admin := domain.Actor{UserID: "cli", Role: domain.RoleAdmin}
	attempt, err := d.service.RegradeAttempt(ctx, admin, attemptID, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "attempt %s: %d/%d\n", attempt.ID, *attempt.Score, attempt.MaxScore)
	return nil
}
