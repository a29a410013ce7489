package main

import (
	"encoding/json"
	"mime"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/paperkey/unlock-cli/internal/extractor"
	"github.com/paperkey/unlock-cli/internal/lockstate"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Probe a document's lock status without guessing passwords",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}

		runner := extractor.NewSubprocess(cfg.Extractor)
		outcome := runner.Extract(cmd.Context(), extractor.ExtractRequest{
			FileBytes: data,
			Filename:  filepath.Base(args[0]),
			MIMEType:  mime.TypeByExtension(filepath.Ext(args[0])),
		})
		status := lockstate.Classify(outcome)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
