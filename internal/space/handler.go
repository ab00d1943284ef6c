package space

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	service *Service
}

func NewHandler(r *mux.Router, service *Service) *Handler {
	handler := &Handler{service: service}
	r.HandleFunc("/api/coworking_spaces", handler.ListSpaces).Methods(http.MethodGet)
	r.HandleFunc("/api/coworking_spaces/{id:[0-9]+}", handler.GetSpace).Methods(http.MethodGet)
	r.HandleFunc("/api/search", handler.SearchSpaces).Methods(http.MethodGet)
	r.HandleFunc("/api/nearest_spaces", handler.NearestSpaces).Methods(http.MethodGet)
	return handler
}

func (h *Handler) ListSpaces(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) GetSpace(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, r, &InputError{Param: "id", Value: raw, Err: err})
		return
	}

	view, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SearchSpaces treats an absent query parameter as the empty string.
func (h *Handler) SearchSpaces(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) NearestSpaces(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	lat, lon, err := ParseCoordinates(query.Get("latitude"), query.Get("longitude"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	views, err := h.service.NearestTo(r.Context(), lat, lon)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	currentSpan := trace.SpanFromContext(r.Context())
	currentSpan.RecordError(err)
	currentSpan.SetStatus(codes.Error, err.Error())

	var inputErr *InputError
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "coworking space not found"})
	case errors.As(err, &inputErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": inputErr.Error()})
	default:
		slog.ErrorContext(r.Context(), "Catalog request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
