package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"flightbroker/internal/broker"
	"flightbroker/internal/storage"
	logx "flightbroker/pkg/logx"
)

type statusResponse struct {
	Started       time.Time             `json:"started"`
	Uptime        string                `json:"uptime"`
	Tokens        int                   `json:"tokens"`
	StreamTimeout string                `json:"stream_timeout"`
	Broker        broker.Snapshot       `json:"broker"`
	Recent        []storage.BatchRecord `json:"recent,omitempty"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Started:       h.started,
		Uptime:        humanize.RelTime(h.started, h.now(), "", ""),
		Tokens:        h.tokens.Len(),
		StreamTimeout: h.StreamTimeout().String(),
		Broker:        h.broker.Snapshot(),
	}
	if h.audit != nil {
		recent, err := h.audit.Recent(r.Context(), 20)
		if err != nil {
			h.log.Warn("audit read failed", logx.Err(err))
		}
		resp.Recent = recent
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		h.log.Debug("status write failed", logx.Err(err))
	}
}
