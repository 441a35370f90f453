package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shortform-studio/internal/subtitles"
)

var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Cut a word-level transcript into subtitle segments",
	Long:  `Read [{"text": "...", "offset": 1.5}, ...] and print the fixed-window segments, or an SRT file with --srt.`,
	Args:  cobra.NoArgs,
	RunE:  runSegment,
}

var (
	wordsPath  string
	windowSec  float64
	srtOut     string
	wrapWidth  int
	minDisplay float64
)

func init() {
	segmentCmd.Flags().StringVarP(&wordsPath, "words", "w", "words.json", "word timestamps JSON")
	segmentCmd.Flags().Float64Var(&windowSec, "window", 3, "segment window in seconds")
	segmentCmd.Flags().StringVar(&srtOut, "srt", "", "write an SRT file instead of printing JSON")
	segmentCmd.Flags().IntVar(&wrapWidth, "wrap", 70, "SRT line width")
	segmentCmd.Flags().Float64Var(&minDisplay, "min-display", 1, "minimum SRT cue display time in seconds")
}

func runSegment(cmd *cobra.Command, args []string) error {
	if windowSec <= 0 {
		return fmt.Errorf("--window must be positive")
	}
	data, err := os.ReadFile(wordsPath)
	if err != nil {
		return fmt.Errorf("read words: %w", err)
	}
	var words []subtitles.Word
	if err := json.Unmarshal(data, &words); err != nil {
		return fmt.Errorf("parse words: %w", err)
	}

	segs := subtitles.SegmentWords(words, windowSec)
	if srtOut != "" {
		if err := subtitles.WriteSRTFile(srtOut, segs, subtitles.SRTOptions{WrapWidth: wrapWidth, MinDisplaySec: minDisplay}); err != nil {
			return err
		}
		fmt.Printf("Wrote %d cues to %s\n", len(segs), srtOut)
		return nil
	}
	return writeJSON("-", segs)
}
