package handlers

import (
	"net/http"
)

type healthResponse struct {
	Status    string `json:"status"`
	Env       string `json:"env,omitempty"`
	JobStore  string `json:"jobStore,omitempty"`
	Queue     string `json:"queue,omitempty"`
	Artifacts string `json:"artifacts,omitempty"`
}

// Health is a liveness probe; it reports the configured drivers but does not
// reach out to them.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if a.Config != nil {
		resp.Env = a.Config.AppEnv
		resp.JobStore = a.Config.JobStoreDriver
		resp.Queue = a.Config.QueueDriver
		resp.Artifacts = a.Config.ArtifactDriver
	}
	a.json(w, http.StatusOK, resp)
}
