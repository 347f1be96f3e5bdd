// Package interceptor is the request-level intermediary between foreground
// clients and the remote incident service. It serves cached content when the
// network is down and turns failed submission writes into queued-for-later
// messages instead of hard errors. It runs in its own process and outlives
// any single foreground session.
package interceptor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/galamseywatch/fieldkit/internal/api"
	"github.com/galamseywatch/fieldkit/internal/model"
	"github.com/galamseywatch/fieldkit/internal/security"
	"github.com/galamseywatch/fieldkit/internal/store"
)

const schemaVersion = "v1"

const offlineDocument = `<!DOCTYPE html><html><head><title>Offline</title></head><body><h1>You are offline</h1><p>Please check your connection.</p></body></html>`

const queuedMessage = "Your report has been saved and will be submitted when you're back online."

// Paths re-fetched into the cache when a generation installs.
var precachePaths = []string{"/", "/offline", "/report", "/map", "/water", "/manifest.json"}

type Server struct {
	generation string
	upstream   *url.URL
	cache      *store.CacheStore
	hub        *Hub
	client     *http.Client
	httpSrv    *http.Server
	listener   net.Listener
	log        *logrus.Logger

	active     atomic.Bool
	online     atomic.Bool
	mu         sync.Mutex
	shutdown   sync.Once
	shutdownEr error
}

// NewServer builds an interceptor generation. The generation string is the
// cache identity: activating it sweeps every entry written by other
// generations.
func NewServer(generation, upstreamBase string, cache *store.CacheStore, log *logrus.Logger) (*Server, error) {
	upstream, err := url.Parse(upstreamBase)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	s := &Server{
		generation: generation,
		upstream:   upstream,
		cache:      cache,
		hub:        NewHub(),
		client:     &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
	s.online.Store(true)

	r := mux.NewRouter()
	r.HandleFunc("/v1/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/status", s.statusHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/watch", s.watchHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/messages", s.messagesHandler).Methods(http.MethodPost)
	r.PathPrefix("/api/").HandlerFunc(s.apiWriteHandler).Methods(http.MethodPost, http.MethodPut, http.MethodDelete)
	r.PathPrefix("/api/").HandlerFunc(s.networkFirstHandler).Methods(http.MethodGet, http.MethodHead)
	r.PathPrefix("/").HandlerFunc(s.cacheFirstHandler).Methods(http.MethodGet, http.MethodHead)

	s.httpSrv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Generation() string {
	return s.generation
}

func (s *Server) Active() bool {
	return s.active.Load()
}

func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.log != nil {
				s.log.WithError(err).Error("interceptor serve failed")
			}
		}
	}()
	return nil
}

func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() {
		s.shutdownEr = s.httpSrv.Shutdown(ctx)
	})
	return s.shutdownEr
}

// Install warms the cache with the precache set. Failures are logged and
// swallowed; an unreachable upstream at install time is normal.
func (s *Server) Install(ctx context.Context) {
	for _, path := range precachePaths {
		if err := s.refreshCacheEntry(ctx, path); err != nil {
			if s.log != nil {
				s.log.WithField("path", path).WithError(err).Debug("precache skipped")
			}
		}
	}
}

// Activate makes this generation the live one: every cache entry written by
// a previous generation is deleted in one sweep, and attached contexts are
// told the new generation took control so they re-attach without a manual
// restart.
func (s *Server) Activate(ctx context.Context) error {
	swept, err := s.cache.SweepGenerations(ctx, s.generation)
	if err != nil {
		return fmt.Errorf("activate generation %s: %w", s.generation, err)
	}
	s.active.Store(true)
	if s.log != nil {
		s.log.WithFields(logrus.Fields{"generation": s.generation, "swept": swept}).Info("interceptor generation activated")
	}
	s.hub.Broadcast(model.Message{Type: model.MsgGenerationAdopted, Generation: s.generation, Timestamp: time.Now().UnixMilli()})
	return nil
}

// WatchConnectivity polls the upstream and broadcasts a sync request to
// foreground contexts on each offline-to-online transition.
func (s *Server) WatchConnectivity(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			was := s.online.Load()
			now := s.probeUpstream(ctx)
			s.online.Store(now)
			if now && !was {
				if s.log != nil {
					s.log.Info("upstream reachable again, requesting sync")
				}
				s.hub.Broadcast(model.Message{Type: model.MsgSyncOfflineIncidents, Timestamp: time.Now().UnixMilli()})
			}
		}
	}
}

func (s *Server) probeUpstream(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, s.upstream.String()+"/", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close() //nolint:errcheck
	return true
}

// ---- handlers ----

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{
		SchemaVersion: schemaVersion,
		Status:        "ok",
		Generation:    s.generation,
	})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	cached, err := s.cache.Count(r.Context())
	if err != nil {
		cached = 0
	}
	writeJSON(w, http.StatusOK, api.StatusResponse{
		SchemaVersion:    schemaVersion,
		GeneratedAt:      time.Now().UTC(),
		Generation:       s.generation,
		Active:           s.active.Load(),
		UpstreamOnline:   s.online.Load(),
		AttachedContexts: s.hub.Attached(),
		CachedEntries:    cached,
	})
}

// watchHandler streams interceptor-to-foreground messages as NDJSON until the
// client disconnects.
func (s *Server) watchHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "stream_unsupported", "response writer cannot stream")
		return
	}
	id, ch := s.hub.Attach()
	defer s.hub.Detach(id)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)

	// Tell a late attacher which generation is in control.
	if s.active.Load() {
		_ = enc.Encode(model.Message{Type: model.MsgGenerationAdopted, Generation: s.generation, Timestamp: time.Now().UnixMilli()})
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := enc.Encode(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// messagesHandler receives foreground-to-interceptor messages. The set is
// closed and validated before anything acts on it.
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	var msg model.Message
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "message_invalid", "malformed message body")
		return
	}
	if err := msg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "message_invalid", err.Error())
		return
	}
	switch msg.Type {
	case model.MsgSkipWaiting:
		if err := s.Activate(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "activate_failed", err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusUnprocessableEntity, "message_unsupported", fmt.Sprintf("foreground may not send %s", msg.Type))
	}
}

// networkFirstHandler serves remote data reads: network wins, the cache entry
// is overwritten on success, and the cache answers when the network fails.
func (s *Server) networkFirstHandler(w http.ResponseWriter, r *http.Request) {
	key := cacheKey(r)
	resp, body, err := s.forward(r)
	if err == nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.putCache(r.Context(), key, resp, body)
		}
		relay(w, resp, body)
		return
	}

	entry, cacheErr := s.cache.Get(r.Context(), key)
	if cacheErr == nil {
		serveCached(w, entry)
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, api.OfflineAPIResponse{
		Offline: true,
		Error:   "You are offline. Data will sync when connection is restored.",
		Cached:  false,
	})
}

// cacheFirstHandler serves static and page assets: cached entry immediately
// when present, with an opportunistic background refresh whose failures are
// swallowed.
func (s *Server) cacheFirstHandler(w http.ResponseWriter, r *http.Request) {
	key := cacheKey(r)
	entry, err := s.cache.Get(r.Context(), key)
	if err == nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := s.refreshCacheEntry(ctx, r.URL.RequestURI()); err != nil && s.log != nil {
				s.log.WithField("path", r.URL.Path).WithError(err).Debug("background refresh failed")
			}
		}()
		serveCached(w, entry)
		return
	}

	resp, body, err := s.forward(r)
	if err == nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.putCache(r.Context(), key, resp, body)
		}
		relay(w, resp, body)
		return
	}

	if isNavigation(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, offlineDocument) //nolint:errcheck
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	io.WriteString(w, "Offline") //nolint:errcheck
}

// apiWriteHandler forwards writes untouched. Only a transport-level failure
// turns into a capture: the payload rides a message to the foreground, which
// persists it, and the caller sees an accepted-and-queued response instead of
// an error.
func (s *Server) apiWriteHandler(w http.ResponseWriter, r *http.Request) {
	buf, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "body_unreadable", err.Error())
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))

	resp, body, err := s.forward(r)
	if err == nil {
		relay(w, resp, body)
		return
	}

	if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, "/api/incidents") {
		writeError(w, http.StatusServiceUnavailable, "upstream_unreachable", err.Error())
		return
	}

	captured, capErr := capturePayload(r.Header.Get("Content-Type"), buf)
	if capErr != nil {
		if s.log != nil {
			s.log.WithError(capErr).Warn("could not capture offline submission payload")
		}
		writeError(w, http.StatusServiceUnavailable, "capture_failed", capErr.Error())
		return
	}

	delivered := s.hub.Broadcast(model.QueuedIncidentMessage(captured, time.Now()))
	if s.log != nil {
		s.log.WithFields(logrus.Fields{
			"contexts": delivered,
			"payload":  security.RedactPayload(string(captured)),
		}).Info("submission captured for offline queue")
	}

	writeJSON(w, http.StatusAccepted, api.QueuedResponse{
		Success: true,
		Offline: true,
		Queued:  true,
		Message: queuedMessage,
	})
}

// ---- forwarding and cache plumbing ----

func (s *Server) forward(r *http.Request) (*http.Response, []byte, error) {
	target := *s.upstream
	target.Path = singleJoin(s.upstream.Path, r.URL.Path)
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("build upstream request: %w", err)
	}
	for _, header := range []string{"Content-Type", "Accept", "Accept-Language"} {
		if v := r.Header.Get(header); v != "" {
			req.Header.Set(header, v)
		}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("read upstream body: %w", err)
	}
	return resp, body, nil
}

func (s *Server) refreshCacheEntry(ctx context.Context, requestURI string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.upstream.String()+requestURI, nil)
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("refresh status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read refresh body: %w", err)
	}
	return s.cache.Put(ctx, store.CachedResponse{
		Key:         http.MethodGet + " " + requestURI,
		Generation:  s.generation,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	})
}

func (s *Server) putCache(ctx context.Context, key string, resp *http.Response, body []byte) {
	err := s.cache.Put(ctx, store.CachedResponse{
		Key:         key,
		Generation:  s.generation,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	})
	if err != nil && s.log != nil {
		s.log.WithField("key", key).WithError(err).Warn("cache write failed")
	}
}

func cacheKey(r *http.Request) string {
	method := r.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	return method + " " + r.URL.RequestURI()
}

func serveCached(w http.ResponseWriter, entry store.CachedResponse) {
	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	w.Header().Set("X-Fieldkit-Cache", "hit")
	w.WriteHeader(entry.Status)
	w.Write(entry.Body) //nolint:errcheck
}

func relay(w http.ResponseWriter, resp *http.Response, body []byte) {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(body) //nolint:errcheck
}

func isNavigation(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// capturePayload normalizes a submitted body to a JSON object: JSON bodies
// pass through, url-encoded and multipart forms have their value fields
// lifted. Binary evidence parts cannot ride the message channel; the
// foreground still holds the originals.
func capturePayload(contentType string, body []byte) ([]byte, error) {
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		var probe map[string]any
		if err := json.Unmarshal(body, &probe); err != nil {
			return nil, fmt.Errorf("captured body is not a json object: %w", err)
		}
		return body, nil
	case strings.HasPrefix(contentType, "application/x-www-form-urlencoded"):
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("parse form body: %w", err)
		}
		return formToJSON(flattenValues(values))
	case strings.HasPrefix(contentType, "multipart/form-data"):
		req, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		if err := req.ParseMultipartForm(32 << 20); err != nil {
			return nil, fmt.Errorf("parse multipart body: %w", err)
		}
		return formToJSON(flattenValues(req.MultipartForm.Value))
	default:
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}
}

func flattenValues(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for key, list := range values {
		if len(list) > 0 {
			out[key] = list[0]
		}
	}
	return out
}

func formToJSON(fields map[string]string) ([]byte, error) {
	// Numeric coordinate fields travel as strings in forms; the foreground
	// boundary re-validates types when it builds the PendingSubmission.
	typed := make(map[string]any, len(fields))
	for key, value := range fields {
		typed[key] = value
	}
	data, err := json.Marshal(typed)
	if err != nil {
		return nil, fmt.Errorf("encode captured form: %w", err)
	}
	return data, nil
}

func singleJoin(base, path string) string {
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, api.ErrorResponse{
		SchemaVersion: schemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Error:         api.APIError{Code: code, Message: message},
	})
}
