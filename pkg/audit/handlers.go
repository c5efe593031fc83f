package audit

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/accessplane/pkg/httputil"
	"github.com/platinummonkey/accessplane/pkg/observability"
)

// MaxSearchLimit caps the page size a caller may request
const MaxSearchLimit = 1000

// Searcher is the read side of an audit store
type Searcher interface {
	Search(ctx context.Context, filter Filter) ([]*Event, error)
}

// Handlers provides HTTP handlers for the audit log API
type Handlers struct {
	store  Searcher
	logger *observability.Logger
}

// NewHandlers creates new audit handlers
func NewHandlers(store Searcher, logger *observability.Logger) *Handlers {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Handlers{
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes registers audit log routes. guard wraps every route and is
// expected to enforce who may read the trail.
func (h *Handlers) RegisterRoutes(router *mux.Router, guard func(http.Handler) http.Handler) {
	router.Handle("/v1/audit/events", guard(http.HandlerFunc(h.ListEvents))).Methods("GET")
}

// ListEvents handles GET /v1/audit/events
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		h.logger.WithField("request_id", observability.GetRequestID(r.Context())).WithError(err).Error("Failed to search audit events")
		httputil.WriteInternalError(w)
		return
	}
	if events == nil {
		events = []*Event{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// ParseFilter builds a search filter from query parameters
func ParseFilter(r *http.Request) (Filter, error) {
	query := r.URL.Query()
	filter := Filter{
		ActorID:       query.Get("actor_id"),
		TargetUserID:  query.Get("target_user_id"),
		ApplicationID: query.Get("application_id"),
		Status:        Status(query.Get("status")),
		ResourceType:  ResourceType(query.Get("resource_type")),
		ResourceID:    query.Get("resource_id"),
	}

	var err error
	if filter.StartTime, err = httputil.ParseQueryTime(r, "start_time"); err != nil {
		return filter, err
	}
	if filter.EndTime, err = httputil.ParseQueryTime(r, "end_time"); err != nil {
		return filter, err
	}

	for _, eventType := range httputil.ParseQueryList(r, "event_types") {
		filter.EventTypes = append(filter.EventTypes, EventType(eventType))
	}

	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", DefaultSearchLimit); err != nil {
		return filter, err
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultSearchLimit
	}
	if filter.Limit > MaxSearchLimit {
		filter.Limit = MaxSearchLimit
	}

	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		return filter, err
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	return filter, nil
}
