package transport

import (
	"errors"
	"net/http"

	"shopline/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

var errNoUserInContext = errors.New("user id not found in request context")

// userIDFromContext extracts the authenticated user's id set by the auth
// middleware
func userIDFromContext(r *http.Request) (uuid.UUID, error) {
	userIDStr, ok := middleware.GetUserID(r.Context())
	if !ok {
		return uuid.Nil, errNoUserInContext
	}
	return uuid.Parse(userIDStr)
}

// urlParamID parses a uuid path parameter
func urlParamID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}
