package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/agentwatch/internal/types"
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().String("source-app", "", "only show events from this source app")
	watchCmd.Flags().String("session", "", "only show events from this session")
	watchCmd.Flags().String("type", "", "only show this hook event type")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream events live from the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceApp, _ := cmd.Flags().GetString("source-app")
		session, _ := cmd.Flags().GetString("session")
		eventType, _ := cmd.Flags().GetString("type")

		match := func(e *types.Event) bool {
			return (sourceApp == "" || e.SourceApp == sourceApp) &&
				(session == "" || e.SessionID == session) &&
				(eventType == "" || e.HookEventType == eventType)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c := newClient(loadConfig())
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		return c.Watch(ctx, func(kind string, events []*types.Event) error {
			if kind == types.MessageInitial {
				fmt.Fprintf(os.Stderr, "Connected to %s, %d recent events.\n", c.StreamURL(), len(events))
			}
			for _, e := range events {
				if match(e) {
					printEventRow(w, e)
				}
			}
			return w.Flush()
		})
	},
}
