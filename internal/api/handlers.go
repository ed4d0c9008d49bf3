package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/animestream/authcore/internal/auth"
	"github.com/animestream/authcore/internal/authclient"
	"github.com/animestream/authcore/internal/logger"
	"github.com/animestream/authcore/internal/pipeline"
	"github.com/animestream/authcore/pkg/httpext"
	"github.com/gorilla/mux"
)

type Handlers struct {
	ctrl *auth.Controller
}

func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	view := map[string]any{
		"page":          "home",
		"authenticated": h.ctrl.IsAuthenticated(),
	}
	if r.URL.Query().Get("login") == "1" {
		view["login_required"] = true
		view["redirect"] = r.URL.Query().Get("redirect")
	}
	if user := h.ctrl.User(); user != nil {
		view["user"] = user.DisplayName()
	}
	httpext.JsonResponse(w, http.StatusOK, view)
}

// Anime serves /anime/{slugWithId}; the id is the trailing dash-separated segment.
func (h *Handlers) Anime(w http.ResponseWriter, r *http.Request) {
	slugWithID := mux.Vars(r)["slugWithId"]
	slug, id := slugWithID, ""
	if i := strings.LastIndex(slugWithID, "-"); i > 0 {
		slug, id = slugWithID[:i], slugWithID[i+1:]
	}
	httpext.JsonResponse(w, http.StatusOK, map[string]any{
		"page": "anime",
		"slug": slug,
		"id":   id,
	})
}

func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	user := h.ctrl.User()
	if user == nil {
		var err error
		if user, err = h.ctrl.LoadProfile(r.Context()); err != nil {
			writeAPIError(w, err)
			return
		}
	}
	httpext.JsonResponse(w, http.StatusOK, map[string]any{
		"page": "profile",
		"user": user,
	})
}

func (h *Handlers) Devices(w http.ResponseWriter, r *http.Request) {
	list, err := h.ctrl.GetDevices(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	httpext.JsonResponse(w, http.StatusOK, map[string]any{
		"page":        "devices",
		"devices":     list.SortedByLastUsed(),
		"total_count": list.TotalCount,
	})
}

type loginRequest struct {
	authclient.Credentials
	Redirect string `json:"redirect,omitempty"`
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpext.JsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.ctrl.Login(r.Context(), req.Credentials)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	redirect := req.Redirect
	if redirect == "" || !strings.HasPrefix(redirect, "/") || strings.HasPrefix(redirect, "//") {
		redirect = "/home"
	}
	httpext.JsonResponse(w, http.StatusOK, map[string]any{
		"success":  result.Success,
		"user":     result.User,
		"redirect": redirect,
	})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Logout(r.Context())
	httpext.JsonResponse(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handlers) State(w http.ResponseWriter, r *http.Request) {
	httpext.JsonResponse(w, http.StatusOK, map[string]any{
		"state":      h.ctrl.AuthState(),
		"refreshing": h.ctrl.IsRefreshing(),
		"loading":    h.ctrl.IsLoading(),
	})
}

// writeAPIError maps a core error onto the gateway response.
func writeAPIError(w http.ResponseWriter, err error) {
	var apiErr *pipeline.APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Status == http.StatusTooManyRequests {
			httpext.JsonRateLimited(w, apiErr.RetryAfter)
			return
		}
		httpext.JsonError(w, apiErr.Error(), apiErr.Status)
	case errors.Is(err, authclient.ErrInvalidPayload):
		httpext.JsonError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, pipeline.ErrNetwork), errors.Is(err, authclient.ErrMalformedResponse):
		log := logger.For(logger.HANDLER)
		log.Error().Err(err).Msg("Backend unavailable")
		httpext.JsonError(w, "Backend unavailable", http.StatusBadGateway)
	default:
		httpext.JsonError(w, err.Error(), http.StatusUnauthorized)
	}
}
