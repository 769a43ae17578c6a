// Package dispatch routes completed artifacts to their owner: live
// sessions get a pushed event, durable clients get a registry entry to
// pull later.
package dispatch

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dddanielliu/emotion-light-sound/internal/logger"
	"github.com/dddanielliu/emotion-light-sound/internal/metrics"
	"github.com/dddanielliu/emotion-light-sound/internal/push"
	"github.com/dddanielliu/emotion-light-sound/internal/registry"
	"github.com/dddanielliu/emotion-light-sound/pkg/types"
)

// PushChannel is the live delivery capability.
type PushChannel interface {
	Live(sessionID string) bool
	Push(sessionID, event string, payload any) error
}

// Store is the pull-side artifact store.
type Store interface {
	Put(artifact types.GeneratedArtifact) error
}

// HashFunc derives a collision-resistant artifact identifier from the
// owner, a timestamp, and the request metadata.
type HashFunc func(ownerKey string, at time.Time, metadata map[string]string) string

// Dispatcher fans completed artifacts out to the push channel or the
// registry.
type Dispatcher struct {
	push    PushChannel
	store   Store
	hash    HashFunc
	metrics *metrics.Metrics
}

// New creates a dispatcher. A nil hash falls back to ContentHash.
func New(pushCh PushChannel, store Store, hash HashFunc, m *metrics.Metrics) *Dispatcher {
	if hash == nil {
		hash = ContentHash
	}
	return &Dispatcher{
		push:    pushCh,
		store:   store,
		hash:    hash,
		metrics: m,
	}
}

// Dispatch delivers one artifact. Live sessions receive a music_generated
// event carrying the audio inline; no registry entry persists for them.
// Durable clients get the bytes stored under (owner, hash) for a later
// one-shot fetch. A push failure falls back to the registry so the
// artifact is not lost to a race with session detach.
func (d *Dispatcher) Dispatch(owner types.OwnerRef, data []byte, metadata map[string]string) error {
	id := d.hash(owner.Key(), time.Now(), metadata)

	if owner.Live() && d.push.Live(owner.SessionID) {
		payload := map[string]any{
			"file_id":  id,
			"audio":    base64.StdEncoding.EncodeToString(data),
			"metadata": metadata,
		}
		err := d.push.Push(owner.SessionID, "music_generated", payload)
		if err == nil {
			logger.Debug("Dispatch", "Pushed %d bytes to session %s (id=%s)", len(data), owner.SessionID, id)
			return nil
		}
		if !errors.Is(err, push.ErrNoSession) {
			return fmt.Errorf("push to %s: %w", owner.SessionID, err)
		}
		logger.Warn("Dispatch", "Session %s gone, storing artifact %s for pull", owner.SessionID, id)
	}

	if err := d.store.Put(registry.NewArtifact(owner.Key(), id, data)); err != nil {
		return fmt.Errorf("store for %s: %w", owner.Key(), err)
	}
	d.metrics.ArtifactsStored.Add(1)
	logger.Debug("Dispatch", "Stored %d bytes for owner %s (id=%s)", len(data), owner.Key(), id)
	return nil
}

// ContentHash is the default artifact identifier: SHA-256 over the owner
// key, the millisecond timestamp, and the metadata pairs in sorted key
// order, so concurrent generations for one owner cannot collide.
func ContentHash(ownerKey string, at time.Time, metadata map[string]string) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "music_%s_%d", ownerKey, at.UnixMilli())
	for _, k := range keys {
		fmt.Fprintf(&b, "%s:%s,", k, metadata[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
