package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pomosyncd",
	Short: "Server-authoritative pomodoro timer with multi-device sync",
	Long: `pomosyncd keeps one pomodoro timer per user on the server and lets any
number of devices read and mutate it concurrently. Mutations use optimistic
concurrency; connected devices receive state changes over SSE.

Configuration is read from the environment (PORT, DB_PATH, JWT_SECRET,
TOKEN_TTL_HOURS, CORS_ORIGINS, MIGRATIONS_DIR, HEARTBEAT_SECONDS).`,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
