package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"flightbroker/internal/broker"
	"flightbroker/internal/flight"
)

// summary resolves keys through the broker and replies with one
// human-readable line per flight. Add tracking=1 for the
// departure/arrival phrase. Without a {keys} segment the flight numbers
// are pulled out of the free-form text parameter.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	var keys []flight.Key
	if chi.URLParam(r, "keys") != "" {
		var ok bool
		if keys, ok = h.parseKeys(w, r); !ok {
			return
		}
	} else {
		keys = textKeys(r.URL.Query().Get("text"))
		if len(keys) == 0 {
			plainText(w, http.StatusBadRequest, "no flight numbers in text")
			return
		}
	}
	tracking, _ := strconv.ParseBool(r.URL.Query().Get("tracking"))

	batch := h.broker.Submit(keys)
	batch.Origin = "summary"
	defer batch.Close()

	ctx, cancel := context.WithTimeout(r.Context(), h.StreamTimeout())
	defer cancel()
	for batch.Remaining() > 0 {
		if _, err := batch.Next(ctx); err != nil {
			if r.Context().Err() != nil {
				return
			}
			break
		}
	}

	now := h.now()
	lines := make([]string, 0, len(keys))
	for _, it := range batch.Items() {
		res, done := it.Result()
		if !done || !res.OK() {
			continue
		}
		info, ok := res.Value.(*flight.Info)
		if !ok {
			continue
		}
		lines = append(lines, flight.Summary(info, tracking, now))
	}
	if len(lines) == 0 {
		plainText(w, http.StatusNotFound, broker.NotFoundMessage)
		return
	}
	plainText(w, http.StatusOK, flight.Combine(lines))
}

// textKeys extracts the designators mentioned in text. Designators that
// do not normalize are skipped.
func textKeys(text string) []flight.Key {
	var keys []flight.Key
	for _, raw := range flight.Extract(text) {
		norm, err := flight.Normalize(raw)
		if err != nil {
			continue
		}
		keys = append(keys, flight.Key{Raw: raw, Normalized: norm})
	}
	return keys
}
