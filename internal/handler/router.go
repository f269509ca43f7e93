package handler

import (
	"log/slog"
	"net/http"

	"identity-server/internal/metrics"
	"identity-server/internal/middleware"
	"identity-server/internal/service"
	"identity-server/pkg/response"

	"github.com/gorilla/mux"
)

type RouterDeps struct {
	AuthService *service.AuthService
	UserService *service.UserService
	Gate        *service.Gate
	Metrics     *metrics.Recorder
	Logger      *slog.Logger
	DevMode     bool

	CORSOrigins string
	CORSMethods string
	CORSHeaders string
}

// NewRouter registers every endpoint under /api/v1 together with /health and
// /metrics. CORS and request logging wrap the router so preflights and
// unmatched paths pass through them too.
func NewRouter(deps RouterDeps) http.Handler {
	authHandler := NewAuthHandler(deps.AuthService, deps.Metrics, deps.DevMode)
	userHandler := NewUserHandler(deps.UserService, deps.DevMode)

	router := mux.NewRouter()
	router.Use(deps.Metrics.Instrument)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		response.Success(w, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)
	auth.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)
	auth.HandleFunc("/token", authHandler.Token).Methods(http.MethodPost)
	auth.HandleFunc("/logout", authHandler.Logout).Methods(http.MethodPost)
	auth.HandleFunc("/forgot-password", authHandler.ForgotPassword).Methods(http.MethodPost)
	auth.HandleFunc("/reset-password", authHandler.ResetPassword).Methods(http.MethodPost)

	users := api.PathPrefix("/users").Subrouter()
	users.Use(middleware.AuthMiddleware(deps.Gate, deps.Metrics))
	users.HandleFunc("", userHandler.List).Methods(http.MethodGet)

	owner := users.PathPrefix("/{id}").Subrouter()
	owner.Use(middleware.OwnerOnly("id"))
	owner.HandleFunc("", userHandler.Get).Methods(http.MethodGet)
	owner.HandleFunc("/password", userHandler.ChangePassword).Methods(http.MethodPut)
	owner.HandleFunc("", userHandler.Delete).Methods(http.MethodDelete)

	cors := middleware.CORSMiddleware(deps.CORSOrigins, deps.CORSMethods, deps.CORSHeaders)
	return middleware.LoggerMiddleware(deps.Logger)(cors(router))
}
