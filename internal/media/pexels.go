package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"shortform-studio/internal/retry"
	"shortform-studio/internal/types"
)

// Pexels searches the Pexels video and photo libraries
type Pexels struct {
	videoURL   string
	photoURL   string
	apiKey     string
	perPage    int
	httpClient *http.Client
}

func NewPexels(videoURL, photoURL, apiKey string, perPage int) (*Pexels, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("PEXELS_API_KEY not set")
	}
	if perPage < 1 {
		perPage = 1
	}
	return &Pexels{
		videoURL:   videoURL,
		photoURL:   photoURL,
		apiKey:     apiKey,
		perPage:    perPage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type pexelsVideoResponse struct {
	Videos []struct {
		ID         int `json:"id"`
		VideoFiles []struct {
			Quality string `json:"quality"`
			Link    string `json:"link"`
			Width   int    `json:"width"`
			Height  int    `json:"height"`
		} `json:"video_files"`
	} `json:"videos"`
}

type pexelsPhotoResponse struct {
	Photos []struct {
		ID  int               `json:"id"`
		Src map[string]string `json:"src"`
	} `json:"photos"`
}

// Search returns the provider's hits for query in provider order.
func (p *Pexels) Search(ctx context.Context, query, orientation string, form types.Form) ([]Candidate, error) {
	base := p.photoURL
	if form == types.FormVideo {
		base = p.videoURL
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(p.perPage))
	if orientation != "" {
		params.Set("orientation", orientation)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pexels request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("pexels: HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	if form == types.FormVideo {
		var parsed pexelsVideoResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("parse pexels videos: %w", err)
		}
		out := make([]Candidate, 0, len(parsed.Videos))
		for _, v := range parsed.Videos {
			c := Candidate{ID: strconv.Itoa(v.ID)}
			for _, f := range v.VideoFiles {
				c.Files = append(c.Files, VideoFile{Quality: f.Quality, Link: f.Link, Width: f.Width, Height: f.Height})
			}
			out = append(out, c)
		}
		return out, nil
	}

	var parsed pexelsPhotoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse pexels photos: %w", err)
	}
	out := make([]Candidate, 0, len(parsed.Photos))
	for _, ph := range parsed.Photos {
		out = append(out, Candidate{ID: strconv.Itoa(ph.ID), Variants: ph.Src})
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
