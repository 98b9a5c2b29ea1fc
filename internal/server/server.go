// Package server exposes the wearer registry over HTTP.
//
// Endpoints:
//
//	POST   /v1/garble             garble one message for a wearer
//	GET    /v1/gags               list the gag catalog
//	GET    /v1/wearers/{id}/gags  show what a wearer has equipped
//	PUT    /v1/wearers/{id}/gags  replace a wearer's gags
//	DELETE /v1/wearers/{id}/gags  take every gag off
//	GET    /v1/chat               websocket chat relay
//
// Request and response bodies are JSON. Errors are reported as
// {"error": "..."} with a 4xx or 5xx status.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/gagspeak/internal/gag"
	"github.com/MrWong99/gagspeak/internal/observe"
	"github.com/MrWong99/gagspeak/internal/resilience"
	"github.com/MrWong99/gagspeak/internal/wearer"
)

// maxBodyBytes caps request bodies and relay messages.
const maxBodyBytes = 64 << 10

// Option configures a [Server].
type Option func(*Server)

// WithMetrics records relay message counts to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithRelayLimit allows each relay connection perSecond messages on average
// with bursts of up to burst. perSecond <= 0 disables limiting.
func WithRelayLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.relayRate = perSecond
		s.relayBurst = max(burst, 1)
	}
}

// WithAllowEmotes sets the emote handling for requests that do not specify
// allow_emotes.
func WithAllowEmotes(allow bool) Option {
	return func(s *Server) {
		s.allowEmotes = allow
	}
}

// WithOriginPatterns lists the browser origins allowed to open the chat
// relay, in addition to same-host requests.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) {
		s.origins = append(s.origins, patterns...)
	}
}

// Server serves the gagspeak HTTP API. It holds no per-request state and is
// safe for concurrent use.
type Server struct {
	registry *wearer.Registry
	metrics  *observe.Metrics

	allowEmotes bool
	relayRate   float64
	relayBurst  int
	origins     []string
}

// New returns a server backed by reg.
func New(reg *wearer.Registry, opts ...Option) *Server {
	s := &Server{registry: reg, relayBurst: 1}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register mounts all endpoints on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/garble", s.handleGarble)
	mux.HandleFunc("GET /v1/gags", s.handleListGags)
	mux.HandleFunc("GET /v1/wearers/{id}/gags", s.handleGetWearer)
	mux.HandleFunc("PUT /v1/wearers/{id}/gags", s.handlePutWearer)
	mux.HandleFunc("DELETE /v1/wearers/{id}/gags", s.handleDeleteWearer)
	mux.HandleFunc("GET /v1/chat", s.handleChat)
}

// garbleRequest is the body of POST /v1/garble and of inbound relay
// messages.
type garbleRequest struct {
	Wearer      string `json:"wearer"`
	Text        string `json:"text"`
	AllowEmotes *bool  `json:"allow_emotes,omitempty"`
}

func (req garbleRequest) validate() error {
	if req.Wearer == "" {
		return errors.New("wearer is required")
	}
	return nil
}

// garbleResponse is the body returned by POST /v1/garble and sent by the
// relay.
type garbleResponse struct {
	Wearer string `json:"wearer"`
	Text   string `json:"text"`
}

// garble runs req through the registry.
func (s *Server) garble(req garbleRequest) garbleResponse {
	allow := s.allowEmotes
	if req.AllowEmotes != nil {
		allow = *req.AllowEmotes
	}
	return garbleResponse{
		Wearer: req.Wearer,
		Text:   s.registry.Garble(req.Wearer, req.Text, allow),
	}
}

// handleGarble handles POST /v1/garble.
func (s *Server) handleGarble(w http.ResponseWriter, r *http.Request) {
	var req garbleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, span := observe.StartSpan(r.Context(), "garble")
	span.SetAttributes(attribute.String("gagspeak.wearer", req.Wearer))
	resp := s.garble(req)
	observe.EndSpan(span, nil)

	writeJSON(w, http.StatusOK, resp)
}

// gagInfo describes one catalog entry.
type gagInfo struct {
	Name       string         `json:"name"`
	MouthState gag.MouthState `json:"mouth_state"`
	Symbols    int            `json:"symbols"`
}

// handleListGags handles GET /v1/gags.
func (s *Server) handleListGags(w http.ResponseWriter, _ *http.Request) {
	catalog := s.registry.Catalog()
	gags := make([]gagInfo, 0, catalog.Len())
	for _, name := range catalog.Names() {
		d, ok := catalog.Lookup(name)
		if !ok {
			continue
		}
		gags = append(gags, gagInfo{Name: d.Name, MouthState: d.MouthState, Symbols: len(d.Phonemes)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"gags": gags})
}

// wearerResponse describes what a wearer has equipped. Gags lists the gags
// in effect; Requested also includes gags the current catalog lacks.
type wearerResponse struct {
	Wearer     string         `json:"wearer"`
	Gags       []string       `json:"gags"`
	Requested  []string       `json:"requested"`
	MouthState gag.MouthState `json:"mouth_state"`
}

func newWearerResponse(id string, set *gag.ActiveSet) wearerResponse {
	resp := wearerResponse{
		Wearer:     id,
		Gags:       set.Names(),
		Requested:  set.Requested(),
		MouthState: set.Mouth(),
	}
	if resp.Gags == nil {
		resp.Gags = []string{}
	}
	if resp.Requested == nil {
		resp.Requested = []string{}
	}
	return resp
}

// handleGetWearer handles GET /v1/wearers/{id}/gags.
func (s *Server) handleGetWearer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	set, err := s.registry.Status(id)
	if errors.Is(err, wearer.ErrNotFound) {
		writeError(w, http.StatusNotFound, "wearer has no gags equipped")
		return
	}
	if err != nil {
		observe.Logger(r.Context()).Error("server: wearer status failed", "wearer", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to read wearer")
		return
	}
	writeJSON(w, http.StatusOK, newWearerResponse(id, set))
}

// equipRequest is the body of PUT /v1/wearers/{id}/gags.
type equipRequest struct {
	Gags       []string       `json:"gags"`
	MouthState gag.MouthState `json:"mouth_state"`
}

// handlePutWearer handles PUT /v1/wearers/{id}/gags.
func (s *Server) handlePutWearer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req equipRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	set, err := s.registry.Equip(r.Context(), id, req.Gags, req.MouthState)
	switch {
	case errors.Is(err, wearer.ErrUnknownGag), errors.Is(err, wearer.ErrInvalidLoadout):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeStoreError(w, r, "equip", id, err)
		return
	}
	writeJSON(w, http.StatusOK, newWearerResponse(id, set))
}

// handleDeleteWearer handles DELETE /v1/wearers/{id}/gags.
func (s *Server) handleDeleteWearer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Remove(r.Context(), id); err != nil {
		writeStoreError(w, r, "remove", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeStoreError reports a failed loadout write. An open store breaker is
// reported as 503 so clients retry later.
func writeStoreError(w http.ResponseWriter, r *http.Request, op, id string, err error) {
	if errors.Is(err, resilience.ErrOpen) {
		observe.Logger(r.Context()).Warn("server: loadout store unavailable", "op", op, "wearer", id)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, "loadout store unavailable, try again later")
		return
	}
	observe.Logger(r.Context()).Error("server: "+op+" failed", "wearer", id, "err", err)
	writeError(w, http.StatusInternalServerError, "failed to "+op+" gags")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
