package api

import (
	"net/http"

	"github.com/animestream/authcore/internal/api/middleware"
	"github.com/animestream/authcore/internal/auth"
	"github.com/animestream/authcore/internal/metrics"
	"github.com/gorilla/mux"
)

// Route names. Protected ones are gated by the guard.
const (
	RouteHome    = "home"
	RouteAnime   = "anime"
	RouteProfile = "profile"
	RouteDevices = "devices"
)

// NewRouter builds the local gateway standing in for the browser shell.
func NewRouter(ctrl *auth.Controller, guard *middleware.Guard, m *metrics.Metrics) *mux.Router {
	h := &Handlers{ctrl: ctrl}
	guard.Protect(RouteProfile, RouteDevices)

	r := mux.NewRouter()

	pages := r.NewRoute().Subrouter()
	pages.Use(guard.Middleware)
	pages.HandleFunc("/home", h.Home).Methods(http.MethodGet).Name(RouteHome)
	pages.HandleFunc("/anime/{slugWithId}", h.Anime).Methods(http.MethodGet).Name(RouteAnime)
	pages.HandleFunc("/profile", h.Profile).Methods(http.MethodGet).Name(RouteProfile)
	pages.HandleFunc("/devices", h.Devices).Methods(http.MethodGet).Name(RouteDevices)

	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/auth/state", h.State).Methods(http.MethodGet)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	r.Handle("/", http.RedirectHandler("/home", http.StatusFound))

	return r
}
