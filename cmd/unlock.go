package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperkey/unlock-cli/internal/model"
)

var (
	unlockPassword string
	unlockOutput   string
	unlockOwner    string
	unlockJSON     bool

	unlockName     string
	unlockDOB      string
	unlockPhone    string
	unlockTaxID    string
	unlockAccount  string
	unlockPolicies []string
	unlockIFSC     string
)

var unlockCmd = &cobra.Command{
	Use:   "unlock <file>",
	Short: "Unlock a document and extract its text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		req, err := buildRequest(args[0])
		if err != nil {
			return err
		}

		res, err := env.Service.Run(ctx, req)
		if err != nil {
			return err
		}

		if res.Success && unlockOutput != "" {
			if err := os.WriteFile(unlockOutput, []byte(res.Outcome.ExtractedText), 0o644); err != nil {
				return eris.Wrapf(err, "write output %s", unlockOutput)
			}
			zap.L().Info("extracted text written", zap.String("path", unlockOutput))
		}

		return printResult(cmd, res)
	},
}

// buildRequest reads the file and assembles the unlock request from flags.
func buildRequest(path string) (model.UnlockRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.UnlockRequest{}, eris.Wrapf(err, "read %s", path)
	}
	return model.UnlockRequest{
		FileBytes: data,
		Filename:  filepath.Base(path),
		MIMEType:  mime.TypeByExtension(filepath.Ext(path)),
		OwnerID:   unlockOwner,
		Password:  unlockPassword,
		Personal: model.PersonalData{
			Name:          unlockName,
			DateOfBirth:   unlockDOB,
			Phone:         unlockPhone,
			TaxID:         unlockTaxID,
			AccountNumber: unlockAccount,
			PolicyNumbers: unlockPolicies,
			IFSCCode:      unlockIFSC,
		},
	}, nil
}

func printResult(cmd *cobra.Command, res model.UnlockResult) error {
	if unlockJSON {
		// The extracted text can be large; the JSON view reports the
		// session shape, not the payload.
		view := res
		view.Outcome.ExtractedText = ""
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	out := cmd.OutOrStdout()
	if res.Success {
		fmt.Fprintf(out, "unlocked: %d chars extracted", res.Outcome.CharCount)
		if res.Password != "" {
			fmt.Fprintf(out, " (password %q, %d candidates over %d rounds)",
				res.Password, res.CandidatesTried, res.Rounds)
		}
		fmt.Fprintln(out)
		if unlockOutput == "" {
			fmt.Fprintln(out, res.Outcome.ExtractedText)
		}
		return nil
	}
	return eris.Errorf("unlock failed: %s after %d candidates", res.FailureReason, res.CandidatesTried)
}

func init() {
	unlockCmd.Flags().StringVarP(&unlockPassword, "password", "p", "", "password supplied by the document owner")
	unlockCmd.Flags().StringVarP(&unlockOutput, "output", "o", "", "write extracted text to this path instead of stdout")
	unlockCmd.Flags().StringVar(&unlockOwner, "owner", "", "owner identifier recorded in the session journal")
	unlockCmd.Flags().BoolVar(&unlockJSON, "json", false, "print the session result as JSON")

	unlockCmd.Flags().StringVar(&unlockName, "name", "", "owner full name")
	unlockCmd.Flags().StringVar(&unlockDOB, "dob", "", "owner date of birth (YYYY-MM-DD)")
	unlockCmd.Flags().StringVar(&unlockPhone, "phone", "", "owner phone number")
	unlockCmd.Flags().StringVar(&unlockTaxID, "tax-id", "", "owner tax identifier (PAN-style)")
	unlockCmd.Flags().StringVar(&unlockAccount, "account", "", "owner account number")
	unlockCmd.Flags().StringSliceVar(&unlockPolicies, "policy", nil, "policy/folio number (repeatable)")
	unlockCmd.Flags().StringVar(&unlockIFSC, "ifsc", "", "owner bank IFSC code")

	rootCmd.AddCommand(unlockCmd)
}
