package handler

import (
	"net/http"

	"github.com/solarperformanceinsight/spi/internal/api/response"
	"github.com/solarperformanceinsight/spi/internal/store"
)

// NewGetUserHandler returns an http.HandlerFunc for GET /user/.
func NewGetUserHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		u, err := s.GetUser(r.Context(), user)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, u)
	}
}
