// @title                       House Screens API
// @version                     1.0
// @description                 Keeps a household's screens registered, activated and sized against the provisioning backend.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "housescreens",
	Short: "Screen provisioning reconciler for a household display",
	Long: `housescreens keeps the screens of every house the session can see in a
working state: it copies default content once, creates a screen where an
environment has none, activates faulty player screens, waits for the
backend to report their dimensions and removes environments that can no
longer host a working screen.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/WebSocket API and the reconcile triggers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var forceReconcile bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation pass and print its outcome as JSON",
	Args:  cobra.NoArgs,
	RunE:  runReconcileOnce,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default configs/config.yml)")
	reconcileCmd.Flags().BoolVarP(&forceReconcile, "force", "f", false, "forced trigger: bypass the graph cache and clear a setup failure")

	rootCmd.AddCommand(serveCmd, reconcileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
