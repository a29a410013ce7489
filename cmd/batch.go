package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paperkey/unlock-cli/internal/model"
)

var (
	batchPassword string
	batchOutDir   string
	batchOwner    string
)

// batchExtensions are the file types the extractor understands.
var batchExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".doc":  true,
	".xlsx": true,
	".xls":  true,
	".csv":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".txt":  true,
}

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Unlock every supported document in a directory",
	Long:  "Walks the directory, runs an unlock session per supported file with bounded concurrency, and writes extracted text next to the output directory. Model calls stay serialized through the shared queue regardless of file concurrency.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		files, err := collectFiles(args[0])
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return eris.Errorf("no supported documents under %s", args[0])
		}
		if batchOutDir != "" {
			if err := os.MkdirAll(batchOutDir, 0o755); err != nil {
				return eris.Wrapf(err, "create output dir %s", batchOutDir)
			}
		}
		zap.L().Info("batch started",
			zap.Int("files", len(files)),
			zap.Int("max_concurrent", cfg.Batch.MaxConcurrentFiles))

		var unlocked, failed atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Batch.MaxConcurrentFiles)

		for _, path := range files {
			g.Go(func() error {
				data, err := os.ReadFile(path)
				if err != nil {
					return eris.Wrapf(err, "read %s", path)
				}
				res, err := env.Service.Run(gctx, model.UnlockRequest{
					FileBytes: data,
					Filename:  filepath.Base(path),
					MIMEType:  mime.TypeByExtension(filepath.Ext(path)),
					OwnerID:   batchOwner,
					Password:  batchPassword,
				})
				if err != nil {
					return err
				}
				if !res.Success {
					failed.Add(1)
					zap.L().Warn("batch file failed",
						zap.String("file", path),
						zap.String("reason", string(res.FailureReason)))
					return nil
				}
				unlocked.Add(1)
				if batchOutDir != "" {
					out := filepath.Join(batchOutDir, textName(path))
					if err := os.WriteFile(out, []byte(res.Outcome.ExtractedText), 0o644); err != nil {
						return eris.Wrapf(err, "write %s", out)
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "batch done: %d unlocked, %d failed of %d files\n",
			unlocked.Load(), failed.Load(), len(files))
		return nil
	},
}

// collectFiles walks root and returns supported documents in walk order.
func collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if batchExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "walk %s", root)
	}
	return files, nil
}

func textName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".txt"
}

func init() {
	batchCmd.Flags().StringVarP(&batchPassword, "password", "p", "", "password to try for every file")
	batchCmd.Flags().StringVarP(&batchOutDir, "output-dir", "o", "", "directory for extracted text files")
	batchCmd.Flags().StringVar(&batchOwner, "owner", "", "owner identifier recorded in the session journal")
	rootCmd.AddCommand(batchCmd)
}
