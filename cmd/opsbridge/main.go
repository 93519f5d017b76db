// opsbridge mirrors PagerDuty incidents into JIRA issues and reflects
// issue state changes back into PagerDuty. It is meant to run unattended
// from a periodic scheduler; concurrent invocations serialize on the
// checkpoint file locks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opsbridge/opsbridge/internal/bridge"
	"github.com/opsbridge/opsbridge/internal/checkpoint"
	"github.com/opsbridge/opsbridge/internal/conf"
	"github.com/opsbridge/opsbridge/internal/jira"
	"github.com/opsbridge/opsbridge/internal/logger"
	"github.com/opsbridge/opsbridge/internal/pagerduty"
)

func main() {
	var configPath string
	var logLevel string

	rootCmd := &cobra.Command{
		Use:          "opsbridge",
		Short:        "Bridge PagerDuty incidents and JIRA issues",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/opsbridge/opsbridge.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "check-pagerduty",
		Short: "Mirror new PagerDuty log entries into JIRA",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, logLevel, checkPagerDuty)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "check-jira",
		Short: "Reflect updated JIRA issues back into PagerDuty",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, logLevel, checkJira)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Run both sync directions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run(cmd.Context(), configPath, logLevel, checkPagerDuty); err != nil {
				return err
			}
			return run(cmd.Context(), configPath, logLevel, checkJira)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type checkFunc func(ctx context.Context, b *bridge.Bridge) (int, error)

func checkPagerDuty(ctx context.Context, b *bridge.Bridge) (int, error) {
	return b.CheckPagerDuty(ctx)
}

func checkJira(ctx context.Context, b *bridge.Bridge) (int, error) {
	return b.CheckJira(ctx)
}

func run(ctx context.Context, configPath, logLevel string, check checkFunc) error {
	log := logger.NewSlogLogger(os.Stderr, logger.LogLevel(logLevel), nil)

	settings, err := conf.Load(configPath)
	if err != nil {
		return err
	}

	pagerClient, err := pagerduty.NewClient(pagerduty.Config{
		Address: settings.PagerDuty.Address,
		Token:   settings.PagerDuty.Token,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	jiraClient, err := jira.NewClient(jira.Config{
		Address:     settings.Jira.Address,
		Username:    settings.Jira.Username,
		Password:    settings.Jira.Password,
		Application: settings.Jira.Application,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	b := bridge.New(bridge.Config{
		Settings: settings,
		Pager:    pagerClient,
		Tickets:  jiraClient,
		Logger:   log,
	})

	_, err = check(ctx, b)
	if errors.Is(err, checkpoint.ErrLockTimeout) {
		// Another run holds the checkpoint. Back off; the scheduler
		// invokes us again shortly.
		log.Warn("checkpoint locked by a concurrent run, skipping")
		return nil
	}
	return err
}
