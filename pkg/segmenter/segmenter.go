// Package segmenter calls the boundary-detection service that splits an
// audio recording into sentence-like segments.
package segmenter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "http://127.0.0.1:8089"

// Boundary is one detected segment span within the source recording.
type Boundary struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Analysis is the result of boundary detection over one file.
type Analysis struct {
	Duration   float64    `json:"duration"`
	Boundaries []Boundary `json:"boundaries"`
	Method     string     `json:"method"`
	FScore     float64    `json:"f_score"`
}

// Segmenter analyzes an audio stream and returns its segment boundaries.
type Segmenter interface {
	Analyze(ctx context.Context, filename string, r io.Reader) (Analysis, error)
}

// Client calls the boundary-detection HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client with the provided base URL. Timeout bounds
// the whole analyze request including the upload.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Analyze streams the audio to the service and decodes its boundaries.
func (c *Client) Analyze(ctx context.Context, filename string, r io.Reader) (Analysis, error) {
	if strings.TrimSpace(filename) == "" {
		return Analysis{}, fmt.Errorf("filename required")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("audio", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", pr)
	if err != nil {
		return Analysis{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Analysis{}, fmt.Errorf("segmenter request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return Analysis{}, fmt.Errorf("segmenter error: %s", errResp.Error)
		}
		return Analysis{}, fmt.Errorf("segmenter error: %s", resp.Status)
	}

	var analysis Analysis
	if err := json.NewDecoder(resp.Body).Decode(&analysis); err != nil {
		return Analysis{}, fmt.Errorf("decode segmenter response: %w", err)
	}
	if analysis.Duration < 0 {
		return Analysis{}, fmt.Errorf("segmenter returned negative duration")
	}
	return analysis, nil
}
