package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/user/agentwatch/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)

	configListCmd.Flags().Bool("changed", false, "only show values that differ from the defaults")
	configGetCmd.Flags().Bool("default", false, "print the built-in default instead")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration values",
	Long:  "List the effective configuration. Values that differ from the built-in defaults show the default and, when set from the environment, the variable.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		changedOnly, _ := cmd.Flags().GetBool("changed")
		cfg := loadConfig()
		entries, err := config.Entries(cfg)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}
		for _, e := range entries {
			if changedOnly && !e.Overridden() {
				continue
			}
			fmt.Fprintln(os.Stdout, formatEntry(e))
		}
		return nil
	},
}

// formatEntry renders "key = value", annotated when the value is not the
// default.
func formatEntry(e config.Entry) string {
	line := fmt.Sprintf("%s = %v", e.Key, displayValue(e.Value))
	var notes []string
	if e.Overridden() {
		notes = append(notes, fmt.Sprintf("default %v", displayValue(e.Default)))
	}
	if e.Env != "" {
		notes = append(notes, "from "+e.Env)
	}
	if len(notes) > 0 {
		line += " (" + strings.Join(notes, ", ") + ")"
	}
	return line
}

func displayValue(v any) any {
	switch v := v.(type) {
	case nil:
		return "<unset>"
	case string:
		if v == "" {
			return `""`
		}
	}
	return v
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		useDefault, _ := cmd.Flags().GetBool("default")
		get := func(key string) (any, error) { return config.GetValue(cfgPath, key) }
		if useDefault {
			get = config.DefaultValue
		}
		val, err := get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Takes effect for serve on the next start or restart.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Make sure the file exists before editing it.
		loadConfig()
		if err := config.SetValue(cfgPath, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Set %s = %s\n", args[0], args[1])
		return nil
	},
}
