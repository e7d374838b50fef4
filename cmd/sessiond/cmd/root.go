package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "sessiond",
	Short: "sessiond is a session lifecycle and authentication state service",
	Long: `A session lifecycle service: it signs users in against a local or OIDC
identity provider, tracks activity and visibility signals, expires idle
sessions, keeps credentials fresh in the background and streams
authentication state transitions to connected clients.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
