package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"tve-auth/internal/bus"
	"tve-auth/internal/platform/logger"
)

// streamBuffer is the per-client SSE buffer; slower clients drop events.
const streamBuffer = 64

// Handler exposes the orchestrator over HTTP using go-chi. Operations answer
// 202 Accepted; their outcomes are read from GET /events.
type Handler struct {
	o     *Orchestrator
	login *LoginWatcher
	bus   bus.Bus
	log   *slog.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

// NewHandler returns a Handler. login may be nil to disable the login routes.
func NewHandler(o *Orchestrator, login *LoginWatcher, b bus.Bus, log *slog.Logger) *Handler {
	return &Handler{
		o:       o,
		login:   login,
		bus:     b,
		log:     logger.Component(log, "http"),
		closing: make(chan struct{}),
	}
}

// CloseStreams ends every open event stream. Register it with
// http.Server.RegisterOnShutdown; Shutdown does not cancel request contexts.
func (h *Handler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// Mount registers the /auth routes and GET /events on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/init", h.Init)
		r.Post("/authenticate", h.Authenticate)
		r.Post("/cancel", h.Cancel)
		r.Post("/finalize", h.Finalize)
		r.Post("/logout", h.Logout)
		r.Post("/authorize", h.Authorize)
		r.Post("/preauthorize", h.Preauthorize)
		r.Post("/metadata", h.Metadata)
		r.Get("/state", h.State)
		if h.login != nil {
			r.Post("/login/navigate", h.LoginNavigate)
			r.Post("/login/error", h.LoginError)
		}
	})
	r.Get("/events", h.Events)
}

// Init handles POST /auth/init.
func (h *Handler) Init(w http.ResponseWriter, r *http.Request) {
	h.accepted(w, "init", h.o.Init())
}

// Authenticate handles POST /auth/authenticate. An empty body checks the
// current status; a provider body selects that provider.
// Body: { "id": "p1", "name": "Provider One", "logoUrl": "..." }.
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var p Provider
	empty, err := decodeOptional(r, &p)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	if empty || p.ID == "" {
		h.accepted(w, "authenticate", h.o.Authenticate())
		return
	}
	h.accepted(w, "authenticate_with", h.o.AuthenticateWith(p))
}

// Cancel handles POST /auth/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.accepted(w, "cancel", h.o.CancelAuthentication())
}

// Finalize handles POST /auth/finalize.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	h.accepted(w, "finalize", h.o.FinalizeAuthentication())
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.accepted(w, "logout", h.o.Logout())
}

// Authorize handles POST /auth/authorize.
// Body: { "videoId": "v1", "resourceId": "r1", "isProtected": true }. Without
// a videoId only the resource is authorized.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	var item VideoItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		h.badRequest(w, err)
		return
	}
	if item.ResourceID == "" {
		h.badRequest(w, errors.New("resourceId is required"))
		return
	}
	if item.VideoID == "" {
		h.accepted(w, "authorize", h.o.Authorize(item.ResourceID))
		return
	}
	h.accepted(w, "authorize_item", h.o.AuthorizeItem(item))
}

// Preauthorize handles POST /auth/preauthorize.
// Body: { "resourceIds": ["r1", "r2"] }.
func (h *Handler) Preauthorize(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ResourceIDs []string `json:"resourceIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.badRequest(w, err)
		return
	}
	h.accepted(w, "preauthorize", h.o.CheckPreauthorizedResources(body.ResourceIDs))
}

// Metadata handles POST /auth/metadata. Body: { "key": "zip" }.
func (h *Handler) Metadata(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Key == "" {
		h.badRequest(w, errors.Join(err, errors.New("key is required")))
		return
	}
	h.accepted(w, "metadata", h.o.GetMetadata(body.Key))
}

// LoginNavigate handles POST /auth/login/navigate. Body: { "url": "..." }.
// It answers { "completed": true } when url finished the login.
func (h *Handler) LoginNavigate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		h.badRequest(w, errors.Join(err, errors.New("url is required")))
		return
	}
	completed, err := h.login.Navigate(body.URL)
	if err != nil {
		h.unavailable(w, "login_navigate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"completed": completed})
}

// LoginError handles POST /auth/login/error. Body: { "description": "..." }.
func (h *Handler) LoginError(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.badRequest(w, err)
		return
	}
	h.accepted(w, "login_error", h.login.LoadFailed(body.Description))
}

// State handles GET /auth/state.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.o.Snapshot())
}

// Events handles GET /events as a server-sent event stream of the public
// topics. ?topics=A,B narrows the stream.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	select {
	case <-h.closing:
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	default:
	}

	topics := PublicTopics
	if q := r.URL.Query().Get("topics"); q != "" {
		topics = filterTopics(strings.Split(q, ","))
		if len(topics) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	stream := bus.NewStream(h.bus, streamBuffer, topics...)
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.log.Debug("event stream opened", slog.Int("topics", len(topics)))
	for {
		select {
		case <-r.Context().Done():
			h.log.Debug("event stream closed")
			return
		case <-h.closing:
			h.log.Debug("event stream closed for shutdown")
			return
		case ev, ok := <-stream.C():
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				h.log.Debug("event stream write failed", slog.String("error", err.Error()))
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) accepted(w http.ResponseWriter, op string, err error) {
	if err != nil {
		h.unavailable(w, op, err)
		return
	}
	h.log.Debug("operation accepted", slog.String("op", op))
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) unavailable(w http.ResponseWriter, op string, err error) {
	h.log.Error("operation rejected", slog.String("op", op), slog.String("error", err.Error()))
	w.WriteHeader(http.StatusServiceUnavailable)
}

func (h *Handler) badRequest(w http.ResponseWriter, err error) {
	h.log.Debug("invalid request body", slog.String("error", err.Error()))
	w.WriteHeader(http.StatusBadRequest)
}

// decodeOptional decodes a JSON body into v and reports whether the body was
// empty.
func decodeOptional(r *http.Request, v any) (bool, error) {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

func filterTopics(names []string) []string {
	public := make(map[string]bool, len(PublicTopics))
	for _, t := range PublicTopics {
		public[t] = true
	}
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if public[n] {
			out = append(out, n)
		}
	}
	return out
}

func writeEvent(w io.Writer, ev bus.Event) error {
	data, err := json.Marshal(ev.Properties)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Topic, data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
