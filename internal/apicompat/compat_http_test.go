package apicompat

import (
	"net/http"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	c := newCompatClient(t)

	resp, body := c.get(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	payload := decodeJSONMap(t, body)
	if got := requireString(t, payload["status"], "status"); got != "ok" {
		t.Fatalf("expected status ok, got %q", got)
	}
}

func TestPingEndpoint(t *testing.T) {
	c := newCompatClient(t)

	resp, body := c.get(t, "/ping")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	payload := decodeJSONMap(t, body)
	if got := requireString(t, payload["message"], "message"); got != "pong" {
		t.Fatalf("expected pong, got %q", got)
	}
}

func TestEmotionUpdateMintsClientID(t *testing.T) {
	c := newCompatClient(t)

	resp, body := c.putJSON(t, "/emotion_update", map[string]any{
		"stage":   "post",
		"emotion": "happy",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	payload := decodeJSONMap(t, body)
	if got := requireString(t, payload["status"], "status"); got != "queued" {
		t.Fatalf("expected queued, got %q", got)
	}
	if requireString(t, payload["client_id"], "client_id") == "" {
		t.Fatal("expected a minted client_id")
	}
}

func TestEmotionUpdateKeepsProvidedClientID(t *testing.T) {
	c := newCompatClient(t)

	resp, body := c.putJSON(t, "/emotion_update?client_id=compat-test", map[string]any{
		"stage":   "pre",
		"emotion": "sad",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	payload := decodeJSONMap(t, body)
	if _, ok := payload["client_id"]; ok {
		t.Fatal("client_id must not be echoed when the caller supplied one")
	}
}

func TestEmotionUpdateRejectsUnknownStage(t *testing.T) {
	c := newCompatClient(t)

	resp, _ := c.putJSON(t, "/emotion_update", map[string]any{
		"stage":   "mid",
		"emotion": "happy",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestEmotionUpdateRejectsUnknownEmotion(t *testing.T) {
	c := newCompatClient(t)

	resp, _ := c.putJSON(t, "/emotion_update", map[string]any{
		"stage":   "post",
		"emotion": "ecstatic",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetMusicRequiresOwner(t *testing.T) {
	c := newCompatClient(t)

	resp, _ := c.get(t, "/get_music")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetMusicListsAvailableFiles(t *testing.T) {
	c := newCompatClient(t)

	resp, body := c.get(t, "/get_music?owner_id=compat-nobody")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	payload := decodeJSONMap(t, body)
	requireSlice(t, payload["available_files"], "available_files")
}

func TestGetMusicUnknownFileIs404(t *testing.T) {
	c := newCompatClient(t)

	resp, body := c.get(t, "/get_music?owner_id=compat-nobody&file_id=missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	payload := decodeJSONMap(t, body)
	if got := requireString(t, payload["error"], "error"); got != "Music file not found" {
		t.Fatalf("unexpected error message %q", got)
	}
}
