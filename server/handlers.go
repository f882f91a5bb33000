package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v3"

	"github.com/joeychilson/cacheurl/config"
	"github.com/joeychilson/cacheurl/rewrite"
	urlpkg "github.com/joeychilson/cacheurl/url"
)

const maxRewriteBody = 5 << 20

// CacheURLRequest represents a request to convert a canonical URL.
type CacheURLRequest struct {
	URL   string `json:"url"`
	Cache string `json:"cache,omitempty"`
}

// CacheURLResponse represents the cache URL of a canonical URL.
type CacheURLResponse struct {
	URL      string `json:"url"`
	Cache    string `json:"cache"`
	Suffix   string `json:"suffix"`
	CacheURL string `json:"cache_url"`
	Class    string `json:"class"`
	Prefix   string `json:"prefix"`
	Secure   bool   `json:"secure"`
}

// RewriteRequest represents a request to rewrite the subresources of a document.
type RewriteRequest struct {
	HTML     string `json:"html"`
	BaseURL  string `json:"base_url"`
	Cache    string `json:"cache,omitempty"`
	Sanitize bool   `json:"sanitize,omitempty"`
	Format   string `json:"format,omitempty"`
}

// RewriteResponse represents a rewritten document.
type RewriteResponse struct {
	Content   string         `json:"content"`
	Format    string         `json:"format"`
	Rewritten int            `json:"rewritten"`
	Skipped   []rewrite.Skip `json:"skipped,omitempty"`
}

// CachesResponse lists the configured caches.
type CachesResponse struct {
	Default string               `json:"default"`
	Caches  []config.CacheConfig `json:"caches"`
}

// ErrorResponse represents an error.
type ErrorResponse struct {
	Error      string            `json:"error"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	s.sendJSON(w, health, http.StatusOK)
}

// handleCaches handles GET /v1/caches requests.
func (s *Server) handleCaches(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, CachesResponse{
		Default: s.config.DefaultCache,
		Caches:  s.config.Caches,
	}, http.StatusOK)
}

// handleCacheURL handles POST /v1/cache-url requests.
func (s *Server) handleCacheURL(w http.ResponseWriter, r *http.Request) {
	var req CacheURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Error("failed to decode request", "error", err)
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	s.cacheURL(w, r, &req)
}

// handleCacheURLQuery handles GET /v1/cache-url?url=...&cache=... requests.
func (s *Server) handleCacheURLQuery(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	s.cacheURL(w, r, &CacheURLRequest{
		URL:   query.Get("url"),
		Cache: query.Get("cache"),
	})
}

func (s *Server) cacheURL(w http.ResponseWriter, r *http.Request, req *CacheURLRequest) {
	cache := s.cacheName(req.Cache)
	suffix, err := s.config.Suffix(cache)
	if err != nil {
		s.sendTransformError(w, err)
		return
	}

	res, err := s.transformer.Transform(suffix, req.URL)
	if err != nil {
		s.logger.Debug("transform failed", "url", req.URL, "cache", cache, "error", err)
		s.sendTransformError(w, err)
		return
	}

	httplog.SetAttrs(r.Context(),
		slog.String("cache", cache),
		slog.String("class", res.Class.String()),
	)

	s.sendJSON(w, CacheURLResponse{
		URL:      req.URL,
		Cache:    cache,
		Suffix:   suffix,
		CacheURL: res.String(),
		Class:    res.Class.String(),
		Prefix:   res.Class.Prefix(),
		Secure:   res.Secure,
	}, http.StatusOK)
}

// handleRewrite handles POST /v1/rewrite requests.
func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRewriteBody)

	var req RewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.sendError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.logger.Error("failed to decode request", "error", err)
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Format == "" {
		req.Format = "html"
	}
	if req.Format != "html" && req.Format != "markdown" {
		s.sendError(w, "format must be 'html' or 'markdown'", http.StatusBadRequest)
		return
	}

	cache := s.cacheName(req.Cache)
	suffix, err := s.config.Suffix(cache)
	if err != nil {
		s.sendTransformError(w, err)
		return
	}

	var opts []rewrite.Option
	if req.Sanitize {
		opts = append(opts, rewrite.WithSanitizer(rewrite.SanitizePolicy()))
	}
	rw := rewrite.New(s.transformer, suffix, opts...)

	var res *rewrite.Result
	if req.Format == "markdown" {
		res, err = rw.Markdown([]byte(req.HTML), req.BaseURL)
	} else {
		res, err = rw.Rewrite([]byte(req.HTML), req.BaseURL)
	}
	if err != nil {
		s.logger.Error("rewrite failed", "base_url", req.BaseURL, "error", err)
		s.sendTransformError(w, err)
		return
	}

	s.logger.Info("rewrite completed",
		"base_url", req.BaseURL,
		"cache", cache,
		"rewritten", res.Rewritten,
		"skipped", len(res.Skipped))

	s.sendJSON(w, RewriteResponse{
		Content:   string(res.Content),
		Format:    req.Format,
		Rewritten: res.Rewritten,
		Skipped:   res.Skipped,
	}, http.StatusOK)
}

func (s *Server) cacheName(name string) string {
	if name == "" {
		return s.config.DefaultCache
	}
	return name
}

// sendTransformError maps transform and lookup failures to HTTP statuses.
func (s *Server) sendTransformError(w http.ResponseWriter, err error) {
	var invalid *urlpkg.InvalidURLError
	switch {
	case errors.Is(err, config.ErrUnknownCache):
		s.sendError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, urlpkg.ErrHostnameTooLong):
		s.sendError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &invalid):
		s.sendErrorWithDetails(w, "invalid url", http.StatusBadRequest, map[string]string{
			"url":    invalid.URL,
			"reason": invalid.Error(),
		})
	default:
		s.sendError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	s.sendErrorWithDetails(w, message, statusCode, nil)
}

func (s *Server) sendErrorWithDetails(w http.ResponseWriter, message string, statusCode int, details map[string]string) {
	errResp := ErrorResponse{
		Error:      message,
		StatusCode: statusCode,
		Details:    details,
	}
	s.sendJSON(w, errResp, statusCode)
}
