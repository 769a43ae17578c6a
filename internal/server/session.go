package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dddanielliu/emotion-light-sound/internal/emitter"
	"github.com/dddanielliu/emotion-light-sound/internal/emotion"
	"github.com/dddanielliu/emotion-light-sound/internal/logger"
	"github.com/dddanielliu/emotion-light-sound/internal/overlay"
	"github.com/dddanielliu/emotion-light-sound/internal/push"
	"github.com/dddanielliu/emotion-light-sound/internal/vision"
	"github.com/dddanielliu/emotion-light-sound/pkg/types"
)

// sessionState is the per-session perception pipeline: throttle into
// smoother into emitter into the shared queue.
type sessionState struct {
	owner    types.OwnerRef
	throttle *vision.Throttle
}

type sessionTable struct {
	mu     sync.Mutex
	states map[string]*sessionState
}

func newSessionTable() *sessionTable {
	return &sessionTable{states: make(map[string]*sessionState)}
}

func (t *sessionTable) set(id string, st *sessionState) {
	t.mu.Lock()
	t.states[id] = st
	t.mu.Unlock()
}

func (t *sessionTable) drop(id string) {
	t.mu.Lock()
	delete(t.states, id)
	t.mu.Unlock()
}

// newSessionState builds the pipeline for one attached session.
func (s *Server) newSessionState(sessionID string) *sessionState {
	owner := types.OwnerRef{SessionID: sessionID}
	smoother := emotion.NewSmoother(s.cfg.SmoothingWindow)

	em := emitter.New(s.cfg.FastInterval, s.cfg.SlowInterval, func(priority types.Priority, smoothed types.SmoothedEmotion) {
		metadata := map[string]string{
			"timestamp":  time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			"confidence": formatConfidence(smoothed.Confidence),
			"source":     "vision",
		}
		req, err := types.NewGenerationRequest(owner, priority, smoothed.Label, metadata)
		if err != nil {
			logger.Warn("Server", "Session %s produced invalid request: %v", sessionID, err)
			return
		}
		if err := s.queue.Enqueue(req); err != nil {
			logger.Warn("Server", "Enqueue for session %s failed: %v", sessionID, err)
		}
	})

	// Stamp the label onto successfully processed frames before they go
	// back to the client.
	detector := vision.DetectorFunc(func(f types.Frame) ([]byte, types.EmotionLabel, float64, error) {
		processed, label, score, err := s.detector.Detect(f)
		if err != nil {
			return processed, label, score, err
		}
		return overlay.Stamp(processed, label), label, score, nil
	})

	throttle := vision.NewThrottle(detector, func(obs types.Observation) {
		smoothed := smoother.Observe(obs.Label, obs.Score)
		fired := em.MaybeEmit(time.Now(), smoothed)
		if fired.Fast {
			s.metrics.FastFires.Add(1)
		}
		if fired.Slow {
			s.metrics.SlowFires.Add(1)
		}
	}, s.metrics)

	return &sessionState{owner: owner, throttle: throttle}
}

// inboundEnvelope is a received WebSocket event before payload decoding.
type inboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// videoFramePayload is the inbound video_frame event.
type videoFramePayload struct {
	Timestamp float64 `json:"timestamp"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Frame     string  `json:"frame"` // base64-encoded image
}

// handleWS upgrades the connection, attaches a session, and serves its
// read loop until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Server", "WebSocket upgrade failed: %v", err)
		return
	}

	sess := s.hub.Attach(conn)
	state := s.newSessionState(sess.ID)
	s.sessions.set(sess.ID, state)

	s.readLoop(sess, state)
}

func (s *Server) readLoop(sess *push.Session, state *sessionState) {
	defer s.hub.Detach(sess)

	for {
		_, data, err := sess.ReadMessage()
		if err != nil {
			logger.Debug("Server", "Session %s read ended: %v", sess.ID, err)
			return
		}

		var env inboundEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Debug("Server", "Session %s sent malformed event: %v", sess.ID, err)
			continue
		}

		switch env.Event {
		case "video_frame":
			// Analysis may block for hundreds of milliseconds; handle off
			// the read loop so later frames can hit the skip path.
			go s.handleVideoFrame(sess, state, env.Data)
		case "emotion_update":
			var payload emotionUpdatePayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				logger.Debug("Server", "Session %s sent malformed emotion_update: %v", sess.ID, err)
				continue
			}
			if err := s.reportEmotionUpdate(state.owner, payload); err != nil {
				logger.Warn("Server", "Session %s emotion_update rejected: %v", sess.ID, err)
			}
		case "ping":
			_ = sess.Send("pong", map[string]string{"message": "pong"})
		default:
			logger.Debug("Server", "Session %s sent unknown event %q", sess.ID, env.Event)
		}
	}
}

func (s *Server) handleVideoFrame(sess *push.Session, state *sessionState, raw json.RawMessage) {
	var payload videoFramePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Debug("Server", "Session %s sent malformed video_frame: %v", sess.ID, err)
		return
	}

	frameData, err := base64.StdEncoding.DecodeString(payload.Frame)
	if err != nil || len(frameData) == 0 {
		logger.Debug("Server", "Session %s sent undecodable frame", sess.ID)
		return
	}

	result := state.throttle.Submit(types.Frame{
		Data:      frameData,
		Width:     payload.Width,
		Height:    payload.Height,
		Timestamp: time.Now(),
	})

	_ = sess.Send("processed_video_frame", map[string]any{
		"sid":                sess.ID,
		"timestamp_received": float64(time.Now().UnixMilli()) / 1000,
		"original_timestamp": payload.Timestamp,
		"width":              payload.Width,
		"height":             payload.Height,
		"emotion":            result.Label,
		"frame":              base64.StdEncoding.EncodeToString(result.Processed),
	})
}

func formatConfidence(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
