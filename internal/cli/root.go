// Package cli implements the creditd command tree.
package cli

import (
	"log/slog"
	"os"

	slogenv "github.com/cbrewster/slog-env"
	"github.com/spf13/cobra"

	"github.com/yourtongji/creditd/internal/api"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "creditd",
	Short: "Campus credit ledger daemon",
	Long: `creditd is the campus internal-credit ledger: wallets, peer transfers,
task bounties, marketplace escrow, reports with compensation/recovery, and
redeem codes, all behind a stateless HMAC signed-request protocol.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (default $CREDITD_HOME/config.toml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger. Level comes from $LOG via slog-env.
func newLogger() *slog.Logger {
	return slog.New(slogenv.NewHandler(slog.NewTextHandler(os.Stderr, nil)))
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the creditd version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("creditd %s\n", api.Version)
	},
}
