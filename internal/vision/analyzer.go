package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dddanielliu/emotion-light-sound/pkg/types"
)

// Analyzer is an HTTP-backed Detector. The analysis model runs as a
// sidecar service; Detect posts one frame and decodes its verdict.
type Analyzer struct {
	url  string
	http *http.Client
}

// NewAnalyzer creates an Analyzer for the given endpoint.
func NewAnalyzer(url string, timeout time.Duration) *Analyzer {
	return &Analyzer{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	Frame  string `json:"frame"` // base64-encoded image
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type analyzeResponse struct {
	Emotion string  `json:"emotion"`
	Score   float64 `json:"score"`
	Frame   string  `json:"frame"` // base64, annotated
}

// Detect implements Detector.
func (a *Analyzer) Detect(frame types.Frame) ([]byte, types.EmotionLabel, float64, error) {
	body, err := json.Marshal(analyzeRequest{
		Frame:  base64.StdEncoding.EncodeToString(frame.Data),
		Width:  frame.Width,
		Height: frame.Height,
	})
	if err != nil {
		return nil, types.LabelError, 0, fmt.Errorf("encode analyze request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, types.LabelError, 0, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, types.LabelError, 0, fmt.Errorf("analyzer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.LabelError, 0, fmt.Errorf("analyzer returned status %d", resp.StatusCode)
	}

	var verdict analyzeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&verdict); err != nil {
		return nil, types.LabelError, 0, fmt.Errorf("decode analyzer response: %w", err)
	}

	label := types.EmotionLabel(verdict.Emotion)
	if !types.ValidLabel(verdict.Emotion) {
		return nil, types.LabelError, 0, fmt.Errorf("analyzer returned unknown emotion %q", verdict.Emotion)
	}

	processed := frame.Data
	if verdict.Frame != "" {
		decoded, err := base64.StdEncoding.DecodeString(verdict.Frame)
		if err != nil {
			return nil, types.LabelError, 0, fmt.Errorf("decode annotated frame: %w", err)
		}
		processed = decoded
	}

	return processed, label, verdict.Score, nil
}

// Ready probes the analyzer endpoint.
func (a *Analyzer) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("analyzer unreachable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("analyzer unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Passthrough is a Detector that echoes frames back unlabeled. It keeps
// the pipeline alive when no analyzer service is configured.
func Passthrough() Detector {
	return DetectorFunc(func(frame types.Frame) ([]byte, types.EmotionLabel, float64, error) {
		return frame.Data, types.LabelNeutral, 0, nil
	})
}
