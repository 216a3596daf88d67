package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time.
var Version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "watchbot",
	Short: "Deliver watched-user activity notifications to Telegram and Discord",
	Long: `watchbot receives activity notifications (voice joins, presence changes,
member events) and delivers them to Telegram chats and Discord DMs with
per-platform formatting, retries and duplicate suppression.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	rootCmd.AddCommand(runCmd, sendCmd, colorsCmd, inferCmd, sanitizeCmd, linkCmd, versionCmd)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
