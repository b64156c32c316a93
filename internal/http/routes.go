package httpx

import (
	"log/slog"
	"net/http"

	"github.com/guardgate/portal/internal/data/cryptoutil"
	"github.com/guardgate/portal/internal/ports"
)

// RouterServices holds all the dependencies needed by the HTTP router.
type RouterServices struct {
	Workflows WorkflowSource
	Backends  ports.BackendDirectory
	Sessions  ports.SessionStore
	Encryptor cryptoutil.Encryptor
	Captcha   ports.ChallengeProvider
	Logger    *slog.Logger
}

// NewRouter creates and configures the portal HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handlers := &PortalHandlers{
		Workflows: services.Workflows,
		Backends:  services.Backends,
		Sessions:  services.Sessions,
		Encryptor: services.Encryptor,
		Captcha:   services.Captcha,
		Logger:    logger,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /portal/{workflowID}", http.HandlerFunc(handlers.Challenge))
	mux.Handle("POST /portal/{workflowID}", http.HandlerFunc(handlers.Submit))
	mux.Handle("POST /portal/{workflowID}/token", http.HandlerFunc(handlers.IssueToken))
	mux.Handle("POST /portal/{workflowID}/logout", http.HandlerFunc(handlers.Logout))
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
