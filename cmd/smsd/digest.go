package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tutorbookapp/relay/internal/config"
	"github.com/tutorbookapp/relay/internal/db"
	"github.com/tutorbookapp/relay/internal/opsalert"
)

func newDigestCmd() *cobra.Command {
	var (
		configPath string
		hours      int
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Build and send the relay digest now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd, configPath, hours, dryRun)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "relay.yaml", "path to relay config file")
	cmd.Flags().IntVar(&hours, "hours", 24, "look-back window in hours")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the digest instead of sending it")
	return cmd
}

func runDigest(cmd *cobra.Command, configPath string, hours int, dryRun bool) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}

	now := time.Now()
	report, err := opsalert.BuildRelayReport(gormDB, now.Add(-time.Duration(hours)*time.Hour), now)
	if err != nil {
		return err
	}
	if report.Total() == 0 {
		fmt.Fprintf(out, "No relay activity in the last %dh\n", hours)
		return nil
	}

	alert := opsalert.FormatRelayReport(report)
	if dryRun {
		fmt.Fprintf(out, "%s\n\n%s\n", alert.Title, alert.Body)
		return nil
	}

	notifier := buildNotifier(cfg.Alerts, out)
	defer notifier.Close()
	notifier.Notify(cmd.Context(), alert)
	return nil
}
