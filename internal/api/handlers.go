package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"filterq/internal/filter"
	"filterq/internal/logging"
	"filterq/internal/service"
)

// maxBodyBytes caps query request bodies.
const maxBodyBytes = 1 << 20

type handler struct {
	svc           *service.FilterService
	db            *sql.DB
	healthTimeout time.Duration
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type entityInfo struct {
	Name          string   `json:"name"`
	AllowedFields []string `json:"allowed_fields"`
}

func (h *handler) listEntities(w http.ResponseWriter, r *http.Request) {
	names := h.svc.Entities()
	infos := make([]entityInfo, 0, len(names))
	for _, name := range names {
		engine, _ := h.svc.Engine(name)
		infos = append(infos, entityInfo{Name: name, AllowedFields: engine.AllowedFields()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": infos})
}

// query handles POST /v1/entities/{entity}/query. A body containing a
// "groups" key is the grouped query shape; anything else is the flat
// parameter shape.
func (h *handler) query(w http.ResponseWriter, r *http.Request) {
	entityName := chi.URLParam(r, "entity")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must be a JSON object"})
		return
	}

	var result *filter.Result
	if _, grouped := probe["groups"]; grouped {
		q, err := filter.ParseQuery(body)
		if err != nil {
			writeError(w, r, err)
			return
		}
		result, err = h.svc.FilterByQuery(r.Context(), entityName, q)
		if err != nil {
			writeError(w, r, err)
			return
		}
	} else {
		p, err := filter.ParseParams(body)
		if err != nil {
			writeError(w, r, err)
			return
		}
		result, err = h.svc.FilterByParams(r.Context(), entityName, p)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// filterByURL handles GET /v1/entities/{entity}. Query parameters other
// than offset, limit, order_by, and ascending are equality filters.
func (h *handler) filterByURL(w http.ResponseWriter, r *http.Request) {
	entityName := chi.URLParam(r, "entity")

	result, err := h.svc.FilterByURL(r.Context(), entityName, r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr    *filter.ValidationError
		unsup   *filter.UnsupportedOperatorError
		unauth  *filter.UnauthorizedFieldsError
		unknown *service.UnknownEntityError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "invalid filter input",
			Details: verr.Messages,
		})
	case errors.As(err, &unsup):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: unsup.Error()})
	case errors.As(err, &unauth):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "fields not allowed for filtering",
			Details: unauth.Fields,
		})
	case errors.As(err, &unknown):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: unknown.Error()})
	default:
		logging.FromContext(r.Context()).Error("request failed", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
