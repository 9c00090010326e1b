//go:build !swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
)

// MountSwagger is a no-op in default builds. Use -tags=swagger for the API explorer.
func MountSwagger(r chi.Router) {}
