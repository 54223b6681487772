package http

import (
	"encoding/json"
	"net/http"
)

// statusBody is the configuration report served by StatusHandler.
// It exposes nothing secret: the treasury address, asset and network are
// already public in every 402 challenge.
type statusBody struct {
	X402Enabled     bool   `json:"x402_enabled"`
	Network         string `json:"network"`
	Asset           string `json:"asset"`
	Treasury        string `json:"treasury"`
	Facilitator     string `json:"facilitator"`
	ChallengeWindow string `json:"challenge_window"`
	ReplayRetention string `json:"replay_retention"`
}

// StatusHandler returns a handler reporting the paywall configuration, for
// agents probing how to pay and for operators checking the deployment.
func (p *Paywall) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := statusBody{
			X402Enabled:     true,
			Network:         p.cfg.Network,
			Asset:           p.cfg.Asset,
			Treasury:        p.cfg.Treasury,
			Facilitator:     p.cfg.FacilitatorURL,
			ChallengeWindow: p.cfg.ChallengeWindow.String(),
			ReplayRetention: p.cfg.ReplayRetention.String(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			p.logger.Error("failed to encode status response", "error", err)
		}
	})
}
