package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/raccoon-warez/cipherwave-relay/internal/loadbalancer"
)

// AdminHandler exposes the operational surface: add, remove, drain and
// update servers, and read the pool stats.
type AdminHandler struct {
	logger   *slog.Logger
	balancer *loadbalancer.Balancer
}

type addServerRequest struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Weight int    `json:"weight"`
}

func (r addServerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.URL, validation.Required, is.URL),
		validation.Field(&r.Weight, validation.Required, validation.Min(1)),
	)
}

type updateServerRequest struct {
	URL    *string `json:"url,omitempty"`
	Weight *int    `json:"weight,omitempty"`
}

func (r updateServerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, is.URL),
		validation.Field(&r.Weight, validation.Min(1)),
	)
}

// NewAdminHandler creates the admin API handler.
func NewAdminHandler(logger *slog.Logger, balancer *loadbalancer.Balancer) *AdminHandler {
	return &AdminHandler{logger: logger, balancer: balancer}
}

// Register mounts the admin routes on the mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/servers", h.addServer)
	mux.HandleFunc("DELETE /admin/servers/{id}", h.removeServer)
	mux.HandleFunc("POST /admin/servers/{id}/drain", h.drainServer)
	mux.HandleFunc("PATCH /admin/servers/{id}", h.updateServer)
	mux.HandleFunc("GET /admin/stats", h.stats)
}

func (h *AdminHandler) addServer(w http.ResponseWriter, r *http.Request) {
	var req addServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := req.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeJSONError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}

	if _, err := h.balancer.AddBackend(req.ID, u, req.Weight); err != nil {
		writeJSONError(w, http.StatusConflict, err.Error())
		return
	}

	h.logger.Info("Server added via admin API", slog.String("backend", req.ID))
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

func (h *AdminHandler) removeServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.balancer.RemoveBackend(id); err != nil {
		h.writeBalancerError(w, err)
		return
	}

	h.logger.Info("Server removed via admin API", slog.String("backend", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) drainServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.balancer.Drain(id); err != nil {
		h.writeBalancerError(w, err)
		return
	}

	h.logger.Info("Server draining via admin API", slog.String("backend", id))
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "draining"})
}

func (h *AdminHandler) updateServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := req.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var u *url.URL
	if req.URL != nil {
		parsed, err := url.Parse(*req.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			writeJSONError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
			return
		}
		u = parsed
	}

	if err := h.balancer.Update(id, u, req.Weight); err != nil {
		h.writeBalancerError(w, err)
		return
	}

	h.logger.Info("Server updated via admin API", slog.String("backend", id))
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "updated"})
}

func (h *AdminHandler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.balancer.Stats())
}

func (h *AdminHandler) writeBalancerError(w http.ResponseWriter, err error) {
	if errors.Is(err, loadbalancer.ErrBackendNotFound) {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSONError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
