package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"flightbroker/internal/broker"
	logx "flightbroker/pkg/logx"
)

const (
	msgFlightData = "flight_data"
	msgEnd        = "end"
	statusDone    = "completed"
)

// ItemMessage is one NDJSON line per resolved key.
type ItemMessage struct {
	Type         string        `json:"type"`
	RequestID    string        `json:"request_id"`
	FlightNumber string        `json:"flight_number"`
	Status       string        `json:"status"`
	Result       broker.Result `json:"result"`

	OriginalFlightNumber string `json:"original_flight_number,omitempty"`
	ScrapedAt            int64  `json:"scraped_at,omitempty"`
}

// EndMessage terminates a stream.
type EndMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

func itemMessage(it *broker.Item) ItemMessage {
	r, _ := it.Result()
	m := ItemMessage{
		Type:                 msgFlightData,
		RequestID:            it.RequestID,
		FlightNumber:         it.Key,
		Status:               statusDone,
		Result:               r,
		OriginalFlightNumber: it.Raw,
	}
	if r.OK() {
		m.ScrapedAt = it.CompletedAt().Unix()
	}
	return m
}

func (h *Handler) scrape(w http.ResponseWriter, r *http.Request) {
	keys, ok := h.parseKeys(w, r)
	if !ok {
		return
	}

	batch := h.broker.Submit(keys)
	batch.Origin = "scrape"
	defer batch.Close()

	streamsActive.Inc()
	defer streamsActive.Dec()

	ctx, cancel := context.WithTimeout(r.Context(), h.StreamTimeout())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	log := h.log.With(logx.String("request_id", batch.ID))

	for {
		done, err := batch.Next(ctx)
		if err != nil {
			if r.Context().Err() != nil {
				// Client went away; its items still complete in the pool.
				log.Debug("stream abandoned", logx.Int("remaining", batch.Remaining()))
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				log.Warn("stream timeout", logx.Int("remaining", batch.Remaining()), logx.Duration("timeout", h.StreamTimeout()))
			}
			break
		}
		if done == nil {
			break
		}
		for _, it := range done {
			if err := enc.Encode(itemMessage(it)); err != nil {
				log.Debug("stream write failed", logx.Err(err))
				return
			}
		}
		_ = rc.Flush()
	}

	_ = enc.Encode(EndMessage{Type: msgEnd, RequestID: batch.ID, Status: statusDone})
	_ = rc.Flush()
}
