package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/krivanek/rollcall/internal/config"
)

// ConfigHandler exposes the runtime tuning knobs.
type ConfigHandler struct {
	tuning *config.Tuning
}

// NewConfigHandler creates a config handler.
func NewConfigHandler(tuning *config.Tuning) *ConfigHandler {
	return &ConfigHandler{tuning: tuning}
}

// Get returns the current tuning values.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.tuning.Snapshot())
}

// Update applies a new set of tuning values. The pipeline picks them up on
// the next frame without a restart.
func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	var next config.TuningSnapshot
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if err := h.tuning.Update(next); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, h.tuning.Snapshot())
}
