package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		// The API key stays out of the dump.
		view := *cfg
		if view.Anthropic.Key != "" {
			view.Anthropic.Key = "[set]"
		}
		out, err := yaml.Marshal(view)
		if err != nil {
			return eris.Wrap(err, "marshal config")
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
