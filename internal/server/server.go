// package server contains middleware & handlers for the playlist generation web service
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixgen/internal/services"
	"github.com/desertthunder/mixgen/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers in the playlist service.
// Implementations handle specific endpoints (landing, auth, playlist operations).
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// errorResponse is the JSON body rendered for failed requests.
type errorResponse struct {
	Error    string `json:"error"`
	Status   int    `json:"status"`
	Platform string `json:"platform_reason,omitempty"`
}

// writeJSON encodes data as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Default().Error("failed to encode response", "err", err)
	}
}

// writeError renders a failure as a readable JSON message, mapping the error
// chain to an HTTP status and surfacing the platform's reason when the
// failure originated from an external API.
func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	status := statusFor(err)

	body := errorResponse{Error: err.Error(), Status: status}

	var apiErr *services.APIError
	if errors.As(err, &apiErr) {
		body.Platform = apiErr.Error()
	}

	if logger != nil {
		logger.Error("request failed", "status", status, "err", err)
	}

	writeJSON(w, status, body)
}

// statusFor maps the error taxonomy to HTTP status codes: authentication
// failures are 401, invalid input 400, unresolvable tracks 404, everything
// else 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated),
		errors.Is(err, shared.ErrTokenExpired),
		errors.Is(err, shared.ErrRefreshFailed),
		errors.Is(err, shared.ErrNoRefreshToken):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrMissingArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrTrackNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
