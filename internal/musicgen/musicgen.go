// Package musicgen is the reference text-to-audio Generator: it maps an
// emotion label to a prompt and posts it to a generation service. The
// worker only sees the Generator interface, so any other backend can be
// swapped in.
package musicgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dddanielliu/emotion-light-sound/internal/logger"
	"github.com/dddanielliu/emotion-light-sound/pkg/types"
)

// DefaultDuration is the requested clip length in seconds.
const DefaultDuration = 10

// tonic is appended to every prompt to keep consecutive clips in one key.
const tonic = "C key"

// prompts maps each emotion to its generation prompt.
var prompts = map[types.EmotionLabel]string{
	types.LabelHappy:    "Uplifting EDM, Progressive House, major key, bright synthesizer leads, energetic beat, euphoria, danceable, optimistic, catchy melody",
	types.LabelSad:      "Emotional EDM, no drums, sad piano melody, orchestral string section, cinematic atmosphere, slow electronic beat, deep synthesizer bass, melancholic, sentimental, touching",
	types.LabelAngry:    "Epic Orchestral EDM, Epic cinematic score, deep brass, aggressive strings, dark choir, building tension, minimal percussion, overwhelming",
	types.LabelFear:     "Dark Ambient Soundscape, horror atmosphere, environmental sounds, eerie wind, distant metallic echoes, creepy synth texture, suspenseful, psychological, unsettling, cold",
	types.LabelDisgust:  "Glitchy electronic music, Acid Techno, squelchy synth, distorted texture, weird rhythm, uncomfortable, dissonant, odd, unpleasant, experimental",
	types.LabelSurprise: "Cinematic EDM, circus music, fast, chaotic, calliope, brass band, playful, comedic shock",
	types.LabelNeutral:  "Lo-fi, peaceful steady beat, smooth synthesizer, relaxing, neutral atmosphere, background music, chill, rhythmic, flow, minimal",
}

// PromptFor returns the generation prompt for an emotion, falling back to
// the neutral prompt for unknown or error labels.
func PromptFor(emotion types.EmotionLabel) string {
	p, ok := prompts[emotion]
	if !ok {
		p = prompts[types.LabelNeutral]
	}
	return p + ", " + tonic
}

// Client generates audio by calling a remote text-to-audio endpoint.
type Client struct {
	url      string
	duration int
	http     *http.Client
}

// New creates a generator client for the given endpoint.
func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		url:      url,
		duration: DefaultDuration,
		http:     &http.Client{Timeout: timeout},
	}
}

// generateRequest is the wire request to the generation service.
type generateRequest struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
}

// Generate posts the prompt for the emotion and returns the audio bytes.
// The call blocks for the full generation; the worker serializes callers.
func (c *Client) Generate(ctx context.Context, emotion types.EmotionLabel, metadata map[string]string) ([]byte, error) {
	prompt := PromptFor(emotion)
	logger.Debug("MusicGen", "Generating %ds clip for %s", c.duration, emotion)

	body, err := json.Marshal(generateRequest{Prompt: prompt, Duration: c.duration})
	if err != nil {
		return nil, fmt.Errorf("encode generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("generation service returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read generated audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("generation service returned no audio")
	}
	return audio, nil
}

// Ready probes the generation service. A failure here is fatal at startup:
// the server must not accept traffic with a non-functional generator.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("build readiness probe: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("generation service unreachable: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("generation service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
