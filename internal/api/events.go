package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/veftodii/air-quality-monitor/internal/events"
)

const defaultEventLimit = 50

// EventsHandler serves the connectivity history.
type EventsHandler struct {
	store *events.Store
}

// NewEventsHandler creates new events handler
func NewEventsHandler(store *events.Store) *EventsHandler {
	return &EventsHandler{store: store}
}

// eventFilter selects events by type, source and outcome. Empty fields match all.
type eventFilter struct {
	types  map[events.EventType]bool
	source string
	failed bool
}

func parseEventFilter(r *http.Request) (eventFilter, error) {
	q := r.URL.Query()
	f := eventFilter{source: q.Get("source")}

	if raw := q.Get("type"); raw != "" {
		f.types = make(map[events.EventType]bool)
		for _, name := range strings.Split(raw, ",") {
			t, ok := events.ParseType(strings.TrimSpace(name))
			if !ok {
				return f, errors.Errorf("unknown event type %q", name)
			}
			f.types[t] = true
		}
	}
	if raw := q.Get("failed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, errors.Errorf("failed must be a boolean, got %q", raw)
		}
		f.failed = v
	}
	return f, nil
}

func (f eventFilter) match(e events.Event) bool {
	if f.types != nil && !f.types[e.Type] {
		return false
	}
	if f.source != "" && e.Source != f.source {
		return false
	}
	return !f.failed || !e.Success
}

// List returns events newest first.
// GET /api/events?limit=50&since=123&type=wifi_retry,wifi_failed&source=wifi&failed=true
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	limit := defaultEventLimit
	var all []events.Event
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		sinceID, err := strconv.ParseInt(sinceStr, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.Errorf("since must be an event id, got %q", sinceStr))
			return
		}
		all = h.store.GetSince(sinceID)
		limit = events.DefaultCapacity
	} else {
		all = h.store.GetAll()
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= events.DefaultCapacity {
			limit = l
		}
	}

	eventList := make([]events.Event, 0, limit)
	for _, e := range all {
		if len(eventList) == limit {
			break
		}
		if filter.match(e) {
			eventList = append(eventList, e)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": eventList,
		"lastId": h.store.LastID(),
	})
}
