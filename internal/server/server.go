// Package server exposes the scheduler's outward surface: the WebSocket
// session endpoint and the HTTP emotion-update and artifact-fetch routes.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dddanielliu/emotion-light-sound/internal/config"
	"github.com/dddanielliu/emotion-light-sound/internal/genqueue"
	"github.com/dddanielliu/emotion-light-sound/internal/logger"
	"github.com/dddanielliu/emotion-light-sound/internal/metrics"
	"github.com/dddanielliu/emotion-light-sound/internal/push"
	"github.com/dddanielliu/emotion-light-sound/internal/registry"
	"github.com/dddanielliu/emotion-light-sound/internal/vision"
	"github.com/dddanielliu/emotion-light-sound/pkg/types"
)

// Server wires the scheduler pipeline behind the HTTP surface.
type Server struct {
	cfg      config.Config
	hub      *push.Hub
	queue    *genqueue.Queue
	registry *registry.Registry
	detector vision.Detector
	metrics  *metrics.Metrics

	sessions *sessionTable
	upgrader websocket.Upgrader
}

// New creates a server over the given collaborators.
func New(cfg config.Config, hub *push.Hub, queue *genqueue.Queue, reg *registry.Registry, detector vision.Detector, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		hub:      hub,
		queue:    queue,
		registry: reg,
		detector: detector,
		metrics:  m,
		sessions: newSessionTable(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 16,
			WriteBufferSize: 1 << 16,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	hub.SetDetachHook(func(sessionID string) {
		s.sessions.drop(sessionID)
		queue.Forget(sessionID)
	})
	return s
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/emotion_update", corsMiddleware(s.handleEmotionUpdate))
	mux.HandleFunc("/get_music", corsMiddleware(s.handleGetMusic))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ping", s.handlePing)
	return mux
}

// corsMiddleware allows browser clients on arbitrary origins.
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// emotionUpdatePayload is the wire shape shared by the HTTP route and the
// WebSocket emotion_update event.
type emotionUpdatePayload struct {
	Stage    string         `json:"stage"`
	Emotion  string         `json:"emotion"`
	Metadata map[string]any `json:"metadata"`
}

// handleEmotionUpdate accepts an out-of-band emotion update for a durable
// client. A missing client_id mints one and returns it so the caller can
// pull its artifacts later.
func (s *Server) handleEmotionUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload emotionUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "invalid payload"}, http.StatusBadRequest)
		return
	}

	clientID := r.URL.Query().Get("client_id")
	minted := clientID == ""
	if minted {
		clientID = uuid.NewString()
	}

	owner := types.OwnerRef{ClientID: clientID}
	if err := s.reportEmotionUpdate(owner, payload); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	resp := map[string]any{"status": "queued"}
	if minted {
		resp["client_id"] = clientID
	}
	writeJSON(w, resp)
}

// reportEmotionUpdate validates an external update and enqueues it. The
// scheduler tolerates un-smoothed input here: the update is taken at face
// value, bypassing the perception pipeline.
func (s *Server) reportEmotionUpdate(owner types.OwnerRef, payload emotionUpdatePayload) error {
	priority, err := types.PriorityForStage(types.Stage(payload.Stage))
	if err != nil {
		return err
	}
	if !types.ValidLabel(payload.Emotion) {
		return fmt.Errorf("%w: unknown emotion %q", types.ErrInvalidRequest, payload.Emotion)
	}

	metadata := stringifyMetadata(payload.Metadata)
	if _, ok := metadata["timestamp"]; !ok {
		metadata["timestamp"] = time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	metadata["stage"] = payload.Stage

	req, err := types.NewGenerationRequest(owner, priority, types.EmotionLabel(payload.Emotion), metadata)
	if err != nil {
		return err
	}

	logger.Info("Server", "Emotion update: owner=%s stage=%s emotion=%s", owner.Key(), payload.Stage, payload.Emotion)
	return s.queue.Enqueue(req)
}

// handleGetMusic serves artifact retrieval for durable clients. Without a
// file_id it lists available hashes; with one it returns the bytes and
// consumes the entry.
func (s *Server) handleGetMusic(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeJSONWithStatus(w, map[string]any{"error": "owner_id is required"}, http.StatusBadRequest)
		return
	}

	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		hashes, err := s.registry.ListAvailable(ownerID)
		if err != nil {
			logger.Error("Server", "List artifacts failed for %s: %v", ownerID, err)
			writeJSONWithStatus(w, map[string]any{"error": "listing failed"}, http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"available_files": hashes})
		return
	}

	data, err := s.registry.Get(ownerID, fileID)
	if errors.Is(err, registry.ErrNotFound) {
		s.metrics.ArtifactsMissing.Add(1)
		writeJSONWithStatus(w, map[string]any{"error": "Music file not found"}, http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error("Server", "Fetch artifact %s failed: %v", fileID, err)
		writeJSONWithStatus(w, map[string]any{"error": "fetch failed"}, http.StatusInternalServerError)
		return
	}

	s.metrics.ArtifactsFetched.Add(1)
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileID+".wav"))
	_, _ = w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":   "ok",
		"sessions": s.metrics.ActiveSessions.Load(),
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"message": "pong"})
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}

// stringifyMetadata flattens arbitrary JSON metadata values to strings so
// they can participate in deterministic hashing.
func stringifyMetadata(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprint(val)
				continue
			}
			out[k] = string(encoded)
		}
	}
	return out
}
