package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shortform-studio/internal/app"
	"shortform-studio/internal/config"
	"shortform-studio/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "shortgen",
	Short: "Generate and re-cut short-form videos from the command line",
	Long: `shortgen runs the same pipeline as the HTTP server without the server:
generate a video from a brief, splice an edited scene into a published video,
or inspect how a transcript is cut into subtitle segments.`,
	SilenceUsage: true,
}

func main() {
	// Load .env (local dev only)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config.yaml")
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(segmentCmd)
}

// build loads config and wires the pipeline; callers must Close the app and Sync the logger.
func build(ctx context.Context) (*app.App, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

// copyInto copies each file into dir and returns the base names.
func copyInto(dir string, files []string) ([]string, error) {
	var names []string
	for _, src := range files {
		name := filepath.Base(src)
		if err := copyFile(src, filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("copy %s: %w", src, err)
		}
		names = append(names, name)
	}
	return names, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if path == "" || path == "-" {
		_, err = fmt.Println(string(data))
		return err
	}
	return os.WriteFile(path, data, 0644)
}
