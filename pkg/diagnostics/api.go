package diagnostics

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/cfoust/kbsync/pkg/engine"

	"github.com/rs/zerolog/log"
)

var (
	ENTITIES_PATH_REGEX = regexp.MustCompile(`^/api/entities/?$`)
	ENTITY_PATH_REGEX   = regexp.MustCompile(`^/api/entities/([\w.:-]+)$`)
	TOGGLE_PATH_REGEX   = regexp.MustCompile(`^/api/entities/([\w.:-]+)/toggle$`)
)

// API serves read-only entity state as JSON, plus the per-entity toggle.
type API struct {
	engine *engine.Engine
}

func NewAPI(e *engine.Engine) *API {
	return &API{engine: e}
}

func writeJSON(w http.ResponseWriter, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode response")
		w.WriteHeader(500)
		return
	}

	header := w.Header()
	header.Add("Content-Type", "application/json")
	w.Write(data)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if ENTITIES_PATH_REGEX.MatchString(path) {
		if r.Method != http.MethodGet {
			w.WriteHeader(405)
			return
		}
		writeJSON(w, a.engine.States())
		return
	}

	if matches := TOGGLE_PATH_REGEX.FindStringSubmatch(path); len(matches) == 2 {
		if r.Method != http.MethodPost {
			w.WriteHeader(405)
			return
		}

		enabled, err := a.engine.Toggle(r.Context(), matches[1])
		if err != nil {
			log.Error().Err(err).Str("entity", matches[1]).Msg("failed to toggle entity")
			w.WriteHeader(500)
			return
		}

		writeJSON(w, map[string]bool{"enabled": enabled})
		return
	}

	if matches := ENTITY_PATH_REGEX.FindStringSubmatch(path); len(matches) == 2 {
		if r.Method != http.MethodGet {
			w.WriteHeader(405)
			return
		}

		state, err := a.engine.State(matches[1])
		if errors.Is(err, engine.ErrUnknownEntity) {
			w.WriteHeader(404)
			return
		}
		if err != nil {
			w.WriteHeader(500)
			return
		}

		writeJSON(w, state)
		return
	}

	w.WriteHeader(400)
}
