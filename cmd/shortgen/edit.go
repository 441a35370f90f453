package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shortform-studio/internal/types"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Re-cut one scene of a published video",
	Long: `Read an edit request (signed_url, scenes with exactly one "edited": true, music)
and splice the replacement scene into the previous video.`,
	Args: cobra.NoArgs,
	RunE: runEdit,
}

var (
	requestPath string
	editMedia   string
	editOut     string
)

func init() {
	editCmd.Flags().StringVarP(&requestPath, "request", "r", "edit.json", "edit request JSON")
	editCmd.Flags().StringVarP(&editMedia, "media", "m", "", "replacement media file for a user scene")
	editCmd.Flags().StringVarP(&editOut, "output", "o", "script.json", "where to write the new script, - for stdout")
}

func runEdit(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(requestPath)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	var req types.EditRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parse request: %w", err)
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

	if editMedia != "" {
		names, err := copyInto(job.MediaDir(), []string{editMedia})
		if err != nil {
			return err
		}
		for i := range req.Scenes {
			if req.Scenes[i].Edited && req.Scenes[i].Media == "" {
				req.Scenes[i].Media = names[0]
			}
		}
	}

	res, err := a.Pipeline.Edit(ctx, job, req)
	if err != nil {
		return err
	}
	if err := writeJSON(editOut, res); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	fmt.Printf("Video: %s\n", res.SignedURL)
	return nil
}
