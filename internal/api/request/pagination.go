package request

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// ParseLimit reads the limit query parameter. Missing, zero or unparseable
// values fall back to DefaultLimit; larger values are capped at MaxLimit.
func ParseLimit(r *http.Request) int {
	limit := DefaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit
}

// ParseThreshold reads the threshold query parameter as a fraction in [0, 1].
func ParseThreshold(r *http.Request, fallback float64) (float64, error) {
	s := r.URL.Query().Get("threshold")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, fmt.Errorf("threshold must be a number between 0 and 1")
	}
	return v, nil
}

// OptionalQuery returns a pointer to a query parameter, or nil when absent.
func OptionalQuery(r *http.Request, key string) *string {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	return &v
}
