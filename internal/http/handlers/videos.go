package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kairopi/internal/domain"
)

type requestVideoBody struct {
	CardData domain.CardData `json:"cardData"`
	Prompt   string          `json:"prompt"`
}

type requestVideoResponse struct {
	JobID string `json:"jobId"`
}

// RequestVideo queues a render and answers before it starts.
func (a *App) RequestVideo(w http.ResponseWriter, r *http.Request) {
	var body requestVideoBody
	if err := decodeJSON(w, r, &body); err != nil {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := a.Jobs.Submit(r.Context(), body.CardData, body.Prompt)
	if err != nil {
		a.Logger.Error().Err(err).Msg("request-video failed")
		a.error(w, http.StatusInternalServerError, "Failed to queue video generation.")
		return
	}
	a.json(w, http.StatusAccepted, requestVideoResponse{JobID: jobID})
}

// VideoStatus returns the job record as stored.
func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	rec, err := a.Jobs.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "Job not found.")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("video-status failed")
		a.error(w, http.StatusInternalServerError, "Failed to get video status.")
		return
	}
	a.json(w, http.StatusOK, rec)
}
