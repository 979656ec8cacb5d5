package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/marketlens/internal/storage"
)

func handleGetPersona(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "segment_key")

		rec, err := deps.Store.Get(key)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "Persona not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to read cache: %v", err)
			return
		}

		writeJSON(w, rec)
	}
}

func handleListPersonas(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := deps.Store.All()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to read cache: %v", err)
			return
		}

		if records == nil {
			records = []storage.Record{}
		}
		writeJSON(w, records)
	}
}
