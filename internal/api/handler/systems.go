package handler

import (
	"net/http"

	"github.com/solarperformanceinsight/spi/internal/api/response"
	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

// NewListSystemsHandler returns an http.HandlerFunc for GET /systems/.
func NewListSystemsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		systems, err := s.ListSystems(r.Context(), user)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, systems)
	}
}

// NewCreateSystemHandler returns an http.HandlerFunc for POST /systems/.
func NewCreateSystemHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var def models.PVSystem
		if !decodeBody(w, r, &def) {
			return
		}
		if err := def.Validate(); err != nil {
			writeError(w, r, err)
			return
		}
		sys, err := s.CreateSystem(r.Context(), user, def)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Location", "/systems/"+sys.ObjectID.String())
		response.Created(w, sys)
	}
}

// NewGetSystemHandler returns an http.HandlerFunc for GET /systems/{systemID}.
func NewGetSystemHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "systemID")
		if !ok {
			return
		}
		sys, err := s.GetSystem(r.Context(), user, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, sys)
	}
}

// NewCheckSystemHandler returns an http.HandlerFunc for POST /systems/check.
// It validates a definition without storing it.
func NewCheckSystemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireUser(w, r); !ok {
			return
		}
		var def models.PVSystem
		if !decodeBody(w, r, &def) {
			return
		}
		if err := def.Validate(); err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, def)
	}
}

// NewUpdateSystemHandler returns an http.HandlerFunc for PUT and POST
// /systems/{systemID}. Existing jobs keep the definition they were created with.
func NewUpdateSystemHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "systemID")
		if !ok {
			return
		}
		var def models.PVSystem
		if !decodeBody(w, r, &def) {
			return
		}
		if err := def.Validate(); err != nil {
			writeError(w, r, err)
			return
		}
		sys, err := s.UpdateSystem(r.Context(), user, id, def)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Location", "/systems/"+sys.ObjectID.String())
		response.JSON(w, sys)
	}
}

// NewDeleteSystemHandler returns an http.HandlerFunc for DELETE /systems/{systemID}.
func NewDeleteSystemHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "systemID")
		if !ok {
			return
		}
		if err := s.DeleteSystem(r.Context(), user, id); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}
