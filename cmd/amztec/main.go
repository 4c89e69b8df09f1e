package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "amztec",
	Short: "amztec — Amazon SP-API tool gateway",
	Long:  "amztec is a multi-tenant gateway that exposes the Amazon Selling Partner API to AI agents as a small set of tools, handling credentials, token refresh, rate limiting, retries, and usage metering.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults plus env overrides)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
