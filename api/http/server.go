package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/ValentinKolb/dCtx/lib/common"
	"github.com/ValentinKolb/dCtx/lib/ctxstore"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger(common.LoggerAPI)

// maxBodyBytes limits the size of request bodies
const maxBodyBytes = 8 << 20

// Server exposes an IContextStore over HTTP with JSON bodies.
type Server struct {
	store ctxstore.IContextStore
	mux   *http.ServeMux
}

// NewServer creates the HTTP handler for store. The store must already be open.
// If logRequests is set every request is logged at debug level.
func NewServer(store ctxstore.IContextStore, logRequests bool) *Server {
	s := &Server{
		store: store,
		mux:   http.NewServeMux(),
	}

	handle := func(pattern string, h http.HandlerFunc) {
		if logRequests {
			h = loggerMiddleware(h)
		}
		s.mux.HandleFunc(pattern, h)
	}

	handle("GET /scopes/{scope}/keys", s.handleKeys)
	handle("GET /scopes/{scope}/values", s.handleGet)
	handle("PUT /scopes/{scope}/values", s.handleSet)
	handle("DELETE /scopes/{scope}/values/{key}", s.handleUnset)
	handle("DELETE /scopes/{scope}", s.handleDelete)
	handle("POST /clean", s.handleClean)
	s.mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves handler on endpoint until ctx is done, then shuts down gracefully.
func ListenAndServe(ctx context.Context, endpoint string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              endpoint,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		Logger.Infof("Starting HTTP server on %s", endpoint)
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
		Logger.Infof("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.Keys(r.Context(), r.PathValue("scope"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

// handleGet returns the bare value for a single ?key= and an array for several
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	keys := r.URL.Query()["key"]
	switch len(keys) {
	case 0:
		writeError(w, ctxstore.NewError(ctxstore.RetCInvalidArgument, "at least one key query parameter is required"))
	case 1:
		value, err := s.store.Get(r.Context(), r.PathValue("scope"), keys[0])
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, value)
	default:
		values, err := s.store.GetMany(r.Context(), r.PathValue("scope"), keys)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, values)
	}
}

// handleSet writes all fields of the JSON object in the body in one batch
func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, ctxstore.WrapError(ctxstore.RetCInvalidArgument, err, "body must be a JSON object"))
		return
	}

	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]any, len(keys))
	for i, k := range keys {
		values[i] = body[k]
	}

	if err := s.store.SetMany(r.Context(), r.PathValue("scope"), keys, values); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Set(r.Context(), r.PathValue("scope"), r.PathValue("key"), ctxstore.Undefined); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDelete answers 202 since the deletion is fire-and-forget
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.store.Delete(r.PathValue("scope"))
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	var nodes []string
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&nodes); err != nil {
			writeError(w, ctxstore.WrapError(ctxstore.RetCInvalidArgument, err, "body must be a JSON array of node names"))
			return
		}
	}
	if err := s.store.Clean(r.Context(), nodes); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// errorResponse is the body of every non 2xx response
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps error kinds to HTTP status codes
func statusFor(err error) (int, ctxstore.RetCode) {
	switch {
	case errors.Is(err, ctxstore.ErrInvalidArgument):
		return http.StatusBadRequest, ctxstore.RetCInvalidArgument
	case errors.Is(err, ctxstore.ErrTimeout):
		return http.StatusGatewayTimeout, ctxstore.RetCTimeout
	case errors.Is(err, ctxstore.ErrSerialization):
		return http.StatusUnprocessableEntity, ctxstore.RetCSerializationError
	case errors.Is(err, ctxstore.ErrStore):
		return http.StatusBadGateway, ctxstore.RetCStoreError
	case errors.Is(err, ctxstore.ErrConnection):
		return http.StatusServiceUnavailable, ctxstore.RetCConnectionError
	default:
		return http.StatusInternalServerError, ctxstore.RetCSuccess
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		Logger.Warningf("request failed: %v", err)
	}
	name := code.String()
	if code == ctxstore.RetCSuccess {
		name = "Unknown"
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: name})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Errorf("Failed to write response: %v", err)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		// Log the request
		duration := time.Since(start)
		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, duration)
	}
}
