package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/agentwatch/internal/client"
	"github.com/user/agentwatch/internal/config"
	"github.com/user/agentwatch/internal/types"
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsRecentCmd, eventsCountCmd, eventsFiltersCmd, eventsClearCmd)

	eventsRecentCmd.Flags().Int("limit", 0, "maximum number of events (server default when 0)")
	eventsRecentCmd.Flags().Bool("json", false, "print raw JSON")
	eventsClearCmd.Flags().Bool("yes", false, "skip confirmation")
}

func newClient(cfg *config.Config) *client.Client {
	return client.New(cfg.Client.ServerURL, client.WithTimeout(cfg.ClientTimeout()))
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query stored events",
}

var eventsRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recent events, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		events, err := newClient(loadConfig()).Recent(context.Background(), limit)
		if err != nil {
			return fmt.Errorf("recent events: %w", err)
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(events)
		}
		if len(events) == 0 {
			fmt.Println("No events found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIME\tSOURCE\tSESSION\tTYPE\tSUMMARY")
		for _, e := range events {
			printEventRow(w, e)
		}
		return w.Flush()
	},
}

func printEventRow(w io.Writer, e *types.Event) {
	fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
		e.ID,
		e.Time().Format("2006-01-02 15:04:05"),
		e.SourceApp,
		shortID(e.SessionID),
		e.HookEventType,
		describe(e),
	)
}

// shortID truncates a session id for display.
func shortID(id string) string {
	if r := []rune(id); len(r) > 8 {
		return string(r[:8])
	}
	return id
}

// describe is a one-line digest of an event for terminal output.
func describe(e *types.Event) string {
	if e.Summary != "" {
		return e.Summary
	}
	var p map[string]any
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return ""
	}
	for _, key := range []string{"tool_name", "user_prompt", "message", "reason"} {
		if s, ok := p[key].(string); ok && s != "" {
			s = strings.Join(strings.Fields(s), " ")
			if r := []rune(s); len(r) > 60 {
				s = string(r[:57]) + "..."
			}
			return s
		}
	}
	return ""
}

var eventsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of stored events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := newClient(loadConfig()).Count(context.Background())
		if err != nil {
			return fmt.Errorf("count events: %w", err)
		}
		fmt.Fprintln(os.Stdout, count)
		return nil
	},
}

var eventsFiltersCmd = &cobra.Command{
	Use:   "filters",
	Short: "List distinct source apps, sessions and event types",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := newClient(loadConfig()).FilterOptions(context.Background())
		if err != nil {
			return fmt.Errorf("filter options: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Source apps:  %s\n", strings.Join(opts.SourceApps, ", "))
		fmt.Fprintf(os.Stdout, "Sessions:     %s\n", strings.Join(opts.SessionIDs, ", "))
		fmt.Fprintf(os.Stdout, "Event types:  %s\n", strings.Join(opts.HookEventTypes, ", "))
		return nil
	},
}

var eventsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored event",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("refusing to clear events without --yes")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := newClient(loadConfig()).Clear(ctx); err != nil {
			return fmt.Errorf("clear events: %w", err)
		}
		fmt.Println("All events cleared.")
		return nil
	},
}
