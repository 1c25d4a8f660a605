package handler

import (
	"net/http"
	"strconv"

	"shopsync-api/pkg/apierror"

	"github.com/go-chi/chi/v5"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// parsePage reads page and limit query parameters, clamping bad values.
func parsePage(r *http.Request) (page, limit, offset int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	return page, limit, (page - 1) * limit
}

// sourceIDParam parses the {source_id} path parameter.
func sourceIDParam(r *http.Request) (int64, *apierror.Error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "source_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apierror.ValidationError("invalid source_id",
			apierror.FieldError{Field: "source_id", Message: "must be a positive integer"})
	}
	return id, nil
}
