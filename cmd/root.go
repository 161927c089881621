package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/config"
)

var rootCmd = &cobra.Command{
	Use:   "payments",
	Short: "Payment gateway integration service",
	Long:  "Payment service for bus-ticket bookings: gateway checkout flows, webhook reconciliation, and payment lifecycle jobs.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	return nil
}
