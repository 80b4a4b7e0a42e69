package main

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"orderdesk/config"
	"orderdesk/httpx"
)

// GetConfigHandler returns the current configuration.
func GetConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, config.GetConfig())
	}
}

// SaveConfigHandler validates and persists a new configuration. Database,
// listen address and broker settings take effect after a restart.
func SaveConfigHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		newCfg := config.GetConfig()
		if err := json.NewDecoder(r.Body).Decode(&newCfg); err != nil {
			httpx.WriteMessage(w, http.StatusBadRequest, "malformed configuration: "+err.Error())
			return
		}
		if err := newCfg.Validate(); err != nil {
			httpx.WriteMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := config.SaveConfig(newCfg); err != nil {
			logger.Error("save config failed", zap.Error(err))
			httpx.WriteMessage(w, http.StatusInternalServerError, "could not save configuration")
			return
		}
		httpx.WriteMessage(w, http.StatusOK, "configuration saved")
	}
}
