package handlers

import (
	"errors"
	"net/http"

	"kairopi/internal/storage"
)

// DailyCardObject is the key the daily card generator writes to.
const DailyCardObject = "card-of-the-day.json"

// CardOfTheDay relays the stored daily card document untouched.
func (a *App) CardOfTheDay(w http.ResponseWriter, r *http.Request) {
	if a.DailyCards == nil {
		a.error(w, http.StatusInternalServerError, "Bucket for daily card is not configured.")
		return
	}
	raw, err := a.DailyCards.Get(r.Context(), DailyCardObject)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		a.Logger.Error().Err(err).Msg("card-of-the-day read failed")
		a.error(w, http.StatusInternalServerError, "Could not retrieve card of the day.")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
