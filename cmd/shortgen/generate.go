package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"shortform-studio/internal/types"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a video from a brief",
	Long:  "Run the full pipeline for a brief file and write the published script as JSON.",
	Args:  cobra.NoArgs,
	RunE:  runGenerate,
}

var (
	briefPath  string
	mediaFiles []string
	scriptOut  string
)

func init() {
	generateCmd.Flags().StringVarP(&briefPath, "brief", "b", "brief.yaml", "brief file (yaml or json)")
	generateCmd.Flags().StringSliceVarP(&mediaFiles, "media", "m", nil, "user media files to include")
	generateCmd.Flags().StringVarP(&scriptOut, "output", "o", "script.json", "where to write the published script, - for stdout")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(briefPath)
	if err != nil {
		return fmt.Errorf("read brief: %w", err)
	}
	var brief types.Brief
	// yaml.v3 also accepts json documents
	if err := yaml.Unmarshal(data, &brief); err != nil {
		return fmt.Errorf("parse brief: %w", err)
	}

	ctx := context.Background()
	a, logger, err := build(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	job, err := a.Pipeline.NewJob()
	if err != nil {
		return err
	}
	defer job.Close()

	names, err := copyInto(job.MediaDir(), mediaFiles)
	if err != nil {
		return err
	}
	brief.MediaFiles = append(brief.MediaFiles, names...)

	res, err := a.Pipeline.Generate(ctx, job, brief)
	if err != nil {
		return err
	}
	if err := writeJSON(scriptOut, res); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	fmt.Printf("Video: %s\n", res.SignedURL)
	return nil
}
