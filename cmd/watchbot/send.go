package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"watchbot/internal/action"
	"watchbot/internal/app"
	"watchbot/internal/format"
)

var sendFlags struct {
	to      []string
	action  string
	userID  string
	name    string
	avatar  string
	server  uint64
	channel uint64
	timeout time.Duration
}

var sendCmd = &cobra.Command{
	Use:   "send MESSAGE",
	Short: "Deliver one notification synchronously and report per-provider results",
	Example: `  watchbot send "User John joined voice channel General"
  watchbot send --to telegram=123456 --to discord=987654 "User John is now online"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cfgPath, app.Options{Version: Version, NoServe: true})
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.Stop(ctx, app.StopCommand)
		}()

		targets, err := parseTargets(sendFlags.to)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			targets = a.Recipients()
		}
		if len(targets) == 0 {
			return errors.New("no recipients: pass --to provider=id or set recipients in config")
		}

		req := format.Request{Message: args[0], Action: action.Type(sendFlags.action)}
		if sendFlags.userID != "" || sendFlags.name != "" || sendFlags.avatar != "" {
			req.User = &format.UserContext{UserID: sendFlags.userID, DisplayName: sendFlags.name, AvatarURL: sendFlags.avatar}
		}
		if sendFlags.server != 0 || sendFlags.channel != 0 {
			req.Voice = &format.Voice{ServerID: sendFlags.server, ChannelID: sendFlags.channel}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), sendFlags.timeout)
		defer cancel()

		names := make([]string, 0, len(targets))
		for name := range targets {
			names = append(names, name)
		}
		sort.Strings(names)

		failed := 0
		out := cmd.OutOrStdout()
		for _, name := range names {
			id, err := a.Notifier().SendNow(ctx, name, targets[name], req)
			if err != nil {
				failed++
				fmt.Fprintf(out, "%-9s %-20s FAILED %v\n", name, targets[name], err)
				continue
			}
			fmt.Fprintf(out, "%-9s %-20s sent (%s)\n", name, targets[name], id)
		}
		if failed == len(names) {
			return errors.New("every delivery failed")
		}
		return nil
	},
}

func init() {
	f := sendCmd.Flags()
	f.StringArrayVar(&sendFlags.to, "to", nil, "provider=recipient (repeatable); defaults to config recipients")
	f.StringVar(&sendFlags.action, "action", "", "explicit action type (inferred from the message when empty)")
	f.StringVar(&sendFlags.userID, "user-id", "", "user id for the details block")
	f.StringVar(&sendFlags.name, "user-name", "", "display name for the details block")
	f.StringVar(&sendFlags.avatar, "avatar", "", "avatar URL")
	f.Uint64Var(&sendFlags.server, "server-id", 0, "voice server id for the channel link")
	f.Uint64Var(&sendFlags.channel, "channel-id", 0, "voice channel id for the channel link")
	f.DurationVar(&sendFlags.timeout, "timeout", time.Minute, "overall deadline")
}

func parseTargets(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, r := range raw {
		name, rcpt, ok := strings.Cut(r, "=")
		name, rcpt = strings.ToLower(strings.TrimSpace(name)), strings.TrimSpace(rcpt)
		if !ok || name == "" || rcpt == "" {
			return nil, fmt.Errorf("--to %q: want provider=recipient", r)
		}
		out[name] = rcpt
	}
	return out, nil
}
