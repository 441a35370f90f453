// Package pipeerr holds the error taxonomy shared by every pipeline stage.
package pipeerr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidBrief       = errors.New("invalid brief")
	ErrScriptGeneration   = errors.New("script generation failed")
	ErrMalformedScript    = errors.New("malformed script")
	ErrMediaFetch         = errors.New("media fetch failed")
	ErrStorageUpload      = errors.New("storage upload failed")
	ErrSynthesis          = errors.New("narration synthesis failed")
	ErrRecognition        = errors.New("speech recognition failed")
	ErrRender             = errors.New("render failed")
	ErrInvalidEditTarget  = errors.New("invalid edit target")
	ErrPreviousRenderGone = errors.New("previous render unavailable")
)

// NoScene marks a StageError that is not tied to one scene.
const NoScene = -1

// StageError records which stage and scene failed.
// It unwraps to both the taxonomy sentinel and the underlying cause.
type StageError struct {
	Stage string
	Scene int
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Scene == NoScene {
		return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: scene %d: %v: %v", e.Stage, e.Scene, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Wrap tags err with a stage, a scene index and a taxonomy sentinel.
func Wrap(stage string, scene int, kind, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Scene: scene, Kind: kind, Err: err}
}

// Public is the single error shape shown to callers
type Public struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

// ToPublic maps any pipeline error onto a caller-facing code and message.
// Provider detail is deliberately left out of Message.
func ToPublic(err error) Public {
	switch {
	case errors.Is(err, ErrInvalidBrief):
		return Public{400, "ERR_INVALID_BRIEF", "The brief is missing required fields"}
	case errors.Is(err, ErrInvalidEditTarget):
		return Public{400, "ERR_INVALID_EDIT_TARGET", "Exactly one scene must be marked as edited"}
	case errors.Is(err, ErrMalformedScript):
		return Public{422, "ERR_MALFORMED_SCRIPT", "The generated script could not be used"}
	case errors.Is(err, ErrScriptGeneration):
		return Public{502, "ERR_SCRIPT_GENERATION", "The script could not be generated"}
	case errors.Is(err, ErrMediaFetch):
		return Public{502, "ERR_MEDIA_FETCH", "A scene's media could not be fetched"}
	case errors.Is(err, ErrStorageUpload):
		return Public{502, "ERR_STORAGE_UPLOAD", "Media could not be stored"}
	case errors.Is(err, ErrSynthesis):
		return Public{502, "ERR_SYNTHESIS", "Narration could not be generated"}
	case errors.Is(err, ErrRecognition):
		return Public{502, "ERR_RECOGNITION", "Subtitles could not be generated"}
	case errors.Is(err, ErrPreviousRenderGone):
		return Public{502, "ERR_PREVIOUS_RENDER", "The previous video could not be retrieved"}
	case errors.Is(err, ErrRender):
		return Public{500, "ERR_RENDER", "The video could not be rendered"}
	}
	return Public{500, "ERR_INTERNAL", "Internal server error"}
}
