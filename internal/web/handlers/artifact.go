package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/strandhq/strand/internal/artifact"
)

// ArtifactReader is the read surface over the version store.
// Implemented by artifact.MemStore and artifact.PGStore.
type ArtifactReader interface {
	Describe(ctx context.Context, artifactID uuid.UUID) (*artifact.Artifact, error)
	Get(ctx context.Context, artifactID uuid.UUID, sequence int) (artifact.Version, error)
	Latest(ctx context.Context, artifactID uuid.UUID) (artifact.Version, error)
	DiffRange(ctx context.Context, artifactID uuid.UUID, from, to int) ([]artifact.DiffOp, error)
}

// ArtifactConfig wires the artifact handler.
type ArtifactConfig struct {
	Logger *slog.Logger
	Store  ArtifactReader
}

// Artifacts serves canvas artifact reads.
type Artifacts struct {
	logger *slog.Logger
	store  ArtifactReader
}

// NewArtifacts creates the artifact handler.
func NewArtifacts(cfg ArtifactConfig) *Artifacts {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Artifacts{logger: cfg.Logger, store: cfg.Store}
}

type artifactResponse struct {
	ID       uuid.UUID     `json:"id"`
	ChatID   uuid.UUID     `json:"chatId"`
	Kind     artifact.Kind `json:"kind"`
	Title    string        `json:"title"`
	Sequence *int          `json:"sequence,omitempty"`
	Content  *string       `json:"content,omitempty"`
}

// Describe returns the artifact with its latest version, when one
// exists. An artifact with zero versions is returned without content.
//
// GET /api/artifact/{id}
func (h *Artifacts) Describe(w http.ResponseWriter, r *http.Request) {
	id, ok := h.artifactID(w, r)
	if !ok {
		return
	}

	meta, err := h.store.Describe(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, id, err)
		return
	}

	resp := artifactResponse{
		ID:     meta.ID,
		ChatID: meta.ChatID,
		Kind:   meta.Kind,
		Title:  meta.Title,
	}
	latest, err := h.store.Latest(r.Context(), id)
	switch {
	case err == nil:
		resp.Sequence = &latest.Sequence
		resp.Content = &latest.Content
	case errors.Is(err, artifact.ErrVersionNotFound):
		// No versions yet: valid state, metadata only.
	default:
		h.writeStoreError(w, id, err)
		return
	}

	h.writeJSON(w, resp)
}

// Version returns one stored snapshot.
//
// GET /api/artifact/{id}/version/{seq}
func (h *Artifacts) Version(w http.ResponseWriter, r *http.Request) {
	id, ok := h.artifactID(w, r)
	if !ok {
		return
	}
	seq, err := strconv.Atoi(r.PathValue("seq"))
	if err != nil {
		http.Error(w, "malformed sequence", http.StatusBadRequest)
		return
	}

	v, err := h.store.Get(r.Context(), id, seq)
	if err != nil {
		h.writeStoreError(w, id, err)
		return
	}
	h.writeJSON(w, v)
}

// Diff returns the line diff between two stored versions.
//
// GET /api/artifact/{id}/diff?from=<seq>&to=<seq>
func (h *Artifacts) Diff(w http.ResponseWriter, r *http.Request) {
	id, ok := h.artifactID(w, r)
	if !ok {
		return
	}

	from, err := strconv.Atoi(r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "malformed from sequence", http.StatusBadRequest)
		return
	}
	to, err := strconv.Atoi(r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "malformed to sequence", http.StatusBadRequest)
		return
	}

	ops, err := h.store.DiffRange(r.Context(), id, from, to)
	if err != nil {
		if errors.Is(err, artifact.ErrInvalidRange) {
			http.Error(w, "from must not exceed to", http.StatusBadRequest)
			return
		}
		h.writeStoreError(w, id, err)
		return
	}
	h.writeJSON(w, ops)
}

func (h *Artifacts) artifactID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "malformed artifact id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Artifacts) writeStoreError(w http.ResponseWriter, id uuid.UUID, err error) {
	if errors.Is(err, artifact.ErrNotFound) || errors.Is(err, artifact.ErrVersionNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	h.logger.Error("artifact read failed", "artifact_id", id, "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func (h *Artifacts) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("artifact encode failed", "error", err)
	}
}
