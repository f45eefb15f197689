package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"kairopi/internal/domain"
	"kairopi/internal/infra"
	"kairopi/internal/providers/genai"
	"kairopi/internal/storage"
)

const maxBodyBytes = 10 << 20

// VideoJobs is the submission and status surface of the render pipeline.
type VideoJobs interface {
	Submit(ctx context.Context, card domain.CardData, prompt string) (string, error)
	Status(ctx context.Context, jobID string) (*domain.JobRecord, error)
}

// Muse is the generative API behind the editor's helper endpoints.
type Muse interface {
	GenerateText(ctx context.Context, req genai.TextRequest) (string, error)
	GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.InlineImage, error)
	GenerateImages(ctx context.Context, req genai.ImagesRequest) ([]genai.InlineImage, error)
}

type App struct {
	Config *infra.Config
	Logger infra.Logger
	Jobs   VideoJobs
	Muse   Muse
	// DailyCards is nil when no daily card bucket is configured.
	DailyCards    storage.ArtifactStore
	WatchInterval time.Duration
	WatchGrace    time.Duration
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]string{"error": message})
}

var errEmptyBody = errors.New("request body is empty")

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
