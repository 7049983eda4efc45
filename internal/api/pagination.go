package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	pulseerrs "github.com/jdholdren/pulse/internal/errors"
	"github.com/jdholdren/pulse/internal/normalize"
	"github.com/jdholdren/pulse/internal/pulse"
)

// parsePaginationParams reads ?page=2&pageSize=10, clamping the size to
// maxSize. Missing or malformed values take the defaults.
func parsePaginationParams(r *http.Request, maxSize int) (int, int) {
	query := r.URL.Query()

	page, _ := strconv.Atoi(query.Get("page"))
	size, _ := strconv.Atoi(query.Get("pageSize"))

	return pulse.Bounds(page, size, maxSize)
}

// parseTimeParam reads an optional date query parameter in any of the
// formats article dates are accepted in.
func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}

	t := normalize.ParseDate(raw)
	if t == nil {
		return nil, pulseerrs.E(
			http.StatusBadRequest,
			fmt.Sprintf("invalid %s date", name),
			pulseerrs.Detail{Field: name, Error: fmt.Sprintf("%q is not a date", raw)},
		)
	}

	return t, nil
}
