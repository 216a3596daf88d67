package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"watchbot/internal/action"
	"watchbot/internal/colors"
	"watchbot/internal/format"
	"watchbot/pkg/tgui"
)

var colorsCmd = &cobra.Command{
	Use:   "colors",
	Short: "Print the resolved embed color for every action type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		r, err := colors.FromEnv()
		if err != nil {
			return err
		}
		return printColors(cmd.OutOrStdout(), r)
	},
}

func printColors(w io.Writer, r *colors.Resolver) error {
	for _, t := range action.All() {
		src := "default"
		if r.Overridden(t) {
			src = "env " + colors.EnvPrefix + t.EnvKey()
		}
		if _, err := fmt.Fprintf(w, "%-16s %s  %s\n", t, r.Resolve(t).Hex(), src); err != nil {
			return err
		}
	}
	for _, warn := range r.Warnings() {
		if _, err := fmt.Fprintf(w, "warning: %s\n", warn); err != nil {
			return err
		}
	}
	return nil
}

var inferCmd = &cobra.Command{
	Use:   "infer MESSAGE",
	Short: "Print the action type inferred from a message",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), action.Infer(strings.Join(args, " ")))
	},
}

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize MESSAGE",
	Short: "Show how a message is sanitized for Telegram HTML",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, stripped := tgui.SanitizeReport(strings.Join(args, " "), tgui.TelegramTags)
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"html":     out.String(),
			"plain":    tgui.Plain(out),
			"stripped": stripped,
		})
	},
}

var linkCmd = &cobra.Command{
	Use:   "link SERVER_ID CHANNEL_ID",
	Short: "Build a Discord voice channel deep link",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var server, channel uint64
		if _, err := fmt.Sscan(args[0], &server); err != nil {
			return fmt.Errorf("server id: %w", err)
		}
		if _, err := fmt.Sscan(args[1], &channel); err != nil {
			return fmt.Errorf("channel id: %w", err)
		}
		link, ok := format.VoiceChannelLink(server, channel)
		if !ok {
			return fmt.Errorf("both ids must be non-zero")
		}
		fmt.Fprintln(cmd.OutOrStdout(), link)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of watchbot",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "watchbot %s\n", Version)
	},
}
