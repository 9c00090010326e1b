//go:build swagger

package httpapi

import (
	_ "embed"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

//go:embed swagger.json
var openAPISpec string

type apiDoc struct{}

func (apiDoc) ReadDoc() string { return openAPISpec }

func init() {
	swag.Register(swag.Name, apiDoc{})
}

// MountSwagger serves the API explorer at /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler())
}
