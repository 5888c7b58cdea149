package httpx

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

// PathInt64 parses the chi URL parameter name as a non-negative int64.
// Anything else is reported as not found, the same as an unknown id.
func PathInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v < 0 {
		return 0, sserr.NotFound()
	}
	return v, nil
}
