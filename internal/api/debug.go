package api

import (
	"net/http"
	"time"

	"fleetdetention/internal/buildinfo"
)

// DebugJSON reports build info and the effective configuration. Connection
// strings and secrets are reduced to presence flags.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	c := s.Config
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  s.now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":               c.Port,
			"rateRps":            c.RateRPS,
			"rateBurst":          c.RateBurst,
			"logLevel":           c.LogLevel,
			"evalInterval":       c.EvalInterval.String(),
			"purgeAt":            c.PurgeAt,
			"webhookMaxAttempts": c.Webhook.MaxAttempts,
			"hasDatabaseUrl":     c.DatabaseURL != "",
			"hasRedisUrl":        c.RedisURL != "",
			"hasWebhookUrl":      c.Webhook.URL != "",
		},
	})
}
