package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/agentwatch/internal/client"
	"github.com/user/agentwatch/internal/config"
	"github.com/user/agentwatch/internal/hook"
)

const (
	healthTimeout = 2 * time.Second

	// A freshly spawned server gets this long to answer /health.
	autoStartWait = 3 * time.Second
	autoStartPoll = 200 * time.Millisecond

	serverDownMessage = "Observability server not running. Run `agentwatch serve` to enable monitoring."
)

func init() {
	rootCmd.AddCommand(sendCmd, guardCmd)

	sendCmd.Flags().String("event-type", "", "hook event type (PreToolUse, PostToolUse, Stop, ...)")
	sendCmd.Flags().String("source-app", "", "override the detected source app")
	sendCmd.Flags().Bool("add-chat", false, "attach the session transcript")
	sendCmd.Flags().String("summary", "", "optional event summary")
	sendCmd.Flags().String("model-name", "", "optional model name")
}

// sendCmd is run by agent hooks. It never fails the hook: every outcome
// exits 0 and problems are at most printed as warnings.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Forward hook input from stdin to the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eventType, _ := cmd.Flags().GetString("event-type")
		sourceApp, _ := cmd.Flags().GetString("source-app")
		addChat, _ := cmd.Flags().GetBool("add-chat")
		summary, _ := cmd.Flags().GetString("summary")
		modelName, _ := cmd.Flags().GetString("model-name")

		if eventType == "" {
			fmt.Fprintln(os.Stderr, "Warning: --event-type not set, sending as \"unknown\"")
			eventType = "unknown"
		}
		sessionStart := eventType == "SessionStart"

		data, err := hook.ReadInput(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			return nil
		}
		if data == nil {
			return nil
		}

		c := hookClient()
		health := func(ctx context.Context) error {
			_, err := c.Health(ctx)
			return err
		}

		var healthy bool
		if sessionStart && os.Getenv("OBSERVABILITY_AUTO_START") == "true" {
			healthy = ensureServer(health, startDetachedServer)
		} else {
			healthy = checkHealth(health)
		}
		if !healthy {
			// The server is optional; only SessionStart says so.
			if sessionStart {
				printSystemMessage(os.Stdout, serverDownMessage)
			}
			return nil
		}

		event := hook.Build(eventType, data, hook.Options{SourceApp: sourceApp, AddChat: addChat})
		event.Summary = summary
		event.ModelName = modelName

		stored, err := c.Submit(context.Background(), event)
		var statusErr *client.StatusError
		switch {
		case errors.As(err, &statusErr):
			fmt.Fprintf(os.Stderr, "Warning: Server error: %v\n", err)
		case err != nil:
			// Unreachable after a healthy check; nothing useful to report.
		case os.Getenv("OBSERVABILITY_DEBUG") != "":
			out, _ := json.Marshal(stored)
			fmt.Fprintln(os.Stderr, string(out))
		}
		if sessionStart && err == nil {
			printSystemMessage(os.Stdout, sessionStartMessage(event.SessionID, event.SourceApp))
		}
		return nil
	},
}

func checkHealth(health func(context.Context) error) bool {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	return health(ctx) == nil
}

// ensureServer returns true once health passes, calling start at most once
// and then polling for up to autoStartWait.
func ensureServer(health func(context.Context) error, start func() error) bool {
	if checkHealth(health) {
		return true
	}
	if err := start(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: start server: %v\n", err)
		return false
	}
	deadline := time.Now().Add(autoStartWait)
	for time.Now().Before(deadline) {
		time.Sleep(autoStartPoll)
		if checkHealth(health) {
			return true
		}
	}
	return false
}

// startDetachedServer runs "agentwatch serve" in its own session so it
// outlives the hook process.
func startDetachedServer() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	serve := exec.Command(exe, "serve", "--config", cfgPath)
	serve.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := serve.Start(); err != nil {
		return err
	}
	return serve.Process.Release()
}

func sessionStartMessage(sessionID, sourceApp string) string {
	return fmt.Sprintf("Observability: Session %s started for %s", shortID(sessionID), sourceApp)
}

// printSystemMessage writes the JSON line agents show to the user.
func printSystemMessage(w io.Writer, msg string) {
	out, _ := json.Marshal(map[string]string{"systemMessage": msg})
	fmt.Fprintln(w, string(out))
}

// hookClient builds a client without exiting on a broken config file, so a
// bad config never fails the hook.
func hookClient() *client.Client {
	serverURL := os.Getenv("OBSERVABILITY_SERVER_URL")
	timeout := client.DefaultTimeout
	if cfg, err := config.Load(cfgPath); err == nil {
		serverURL = cfg.Client.ServerURL
		timeout = cfg.ClientTimeout()
	}
	if serverURL == "" {
		serverURL = "http://localhost:4000"
	}
	return client.New(serverURL,
		client.WithTimeout(timeout),
		client.WithRetryPolicy(client.NoRetry()),
	)
}

// guardCmd is a PreToolUse hook that blocks destructive commands and
// credential file access. Exit status 2 tells the agent to refuse the call.
var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Check a pending tool call from stdin and block unsafe ones",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := hook.ReadInput(os.Stdin)
		if err != nil || data == nil {
			return
		}
		toolName, _ := data["tool_name"].(string)
		toolInput, _ := data["tool_input"].(map[string]any)

		allowed, reason := hook.CheckToolUse(toolName, toolInput)
		if allowed {
			return
		}
		out, _ := json.Marshal(map[string]string{
			"decision":      "deny",
			"reason":        reason,
			"systemMessage": "Tool use blocked by agentwatch: " + reason,
		})
		fmt.Fprintln(os.Stderr, string(out))
		os.Exit(2)
	},
}
