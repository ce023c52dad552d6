package httpx

import (
	"net/http"
	"strconv"
)

// parseLimit reads ?limit= for job listings. Unparseable values fall back to
// defLimit; the result always lands in [1, maxLimit].
func parseLimit(r *http.Request, defLimit, maxLimit int) int {
	n := defLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			n = v
		}
	}
	return min(max(n, 1), max(maxLimit, 1))
}
