// Package server exposes the snapshot engine over HTTP: resolve a keyword
// or take a URL, capture it into a folder under the downloads directory,
// and serve finished folders as zip archives.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/semaphore"

	"github.com/hazyhaar/pagesnap/bundle"
	"github.com/hazyhaar/pagesnap/guard"
	"github.com/hazyhaar/pagesnap/resolver"
	"github.com/hazyhaar/pagesnap/snapshot"
	"github.com/hazyhaar/pagesnap/store"
)

// Snapshotter captures one page into a directory. *snapshot.Engine
// satisfies it.
type Snapshotter interface {
	Capture(ctx context.Context, sourceURL, outputDir string) (*snapshot.Report, error)
}

// Config configures the HTTP API.
type Config struct {
	DownloadsDir   string
	ShallowTimeout time.Duration
	DeepTimeout    time.Duration
	MaxConcurrent  int
	BlockPrivate   bool
	MaxBodyBytes   int64
	Logger         *slog.Logger
}

func (c *Config) defaults() {
	if c.DownloadsDir == "" {
		c.DownloadsDir = "downloads"
	}
	if c.ShallowTimeout <= 0 {
		c.ShallowTimeout = 100 * time.Second
	}
	if c.DeepTimeout <= 0 {
		c.DeepTimeout = 300 * time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 64 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server handles the HTTP API.
type Server struct {
	cfg      Config
	engine   Snapshotter
	resolver resolver.Resolver // may be nil: only direct URLs are accepted
	store    *store.Store      // may be nil: history is not recorded

	slots    *semaphore.Weighted
	folderMu sync.Mutex
}

// New creates a Server.
func New(cfg Config, engine Snapshotter, res resolver.Resolver, st *store.Store) *Server {
	cfg.defaults()
	return &Server{
		cfg:      cfg,
		engine:   engine,
		resolver: res,
		store:    st,
		slots:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

// Handler returns the chi router with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(CORS)
	r.Use(SecurityHeaders(DefaultHeaders()))
	r.Use(MaxBody(s.cfg.MaxBodyBytes))
	r.Use(TraceID(s.cfg.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/api/resolve", s.handleResolve)
	r.Post("/api/snapshot", s.handleSnapshot)
	r.Get("/api/captures", s.handleCaptures)
	r.Get("/download/{folder}", s.handleDownload)
	return r
}

type captureRequest struct {
	Keyword string `json:"keyword"`
	URL     string `json:"url"`
	Deep    bool   `json:"deep"`
}

// captureResponse uses pointers so "no result" encodes as nulls.
type captureResponse struct {
	URL    *string `json:"url"`
	Folder *string `json:"folder"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	log := GetLogger(r.Context())

	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	keyword := strings.TrimSpace(req.Keyword)
	if keyword == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Keyword missing"})
		return
	}

	target, ok := resolver.Direct(keyword)
	if !ok {
		if s.resolver == nil {
			writeJSON(w, http.StatusOK, captureResponse{})
			return
		}
		var err error
		target, err = s.resolver.Resolve(r.Context(), keyword)
		switch {
		case errors.Is(err, resolver.ErrNoResult):
			writeJSON(w, http.StatusOK, captureResponse{})
			return
		case err != nil:
			log.Error("server: resolve failed", "keyword", keyword, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "could not resolve keyword"})
			return
		}
	}
	log.Info("server: resolved", "keyword", keyword, "url", target)

	s.capture(w, r, keyword, target, req.Deep)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "URL missing"})
		return
	}
	s.capture(w, r, "", req.URL, req.Deep)
}

// capture runs one snapshot into a fresh folder and writes the response.
func (s *Server) capture(w http.ResponseWriter, r *http.Request, keyword, rawURL string, deep bool) {
	ctx := r.Context()
	log := GetLogger(ctx)

	u, err := guard.ValidateTarget(rawURL, s.cfg.BlockPrivate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	target := u.String()

	if err := s.slots.Acquire(ctx, 1); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server busy"})
		return
	}
	defer s.slots.Release(1)

	folder, dir, err := s.reserveFolder(target)
	if err != nil {
		log.Error("server: reserve folder", "url", target, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "scraping failed"})
		return
	}

	var rec *store.Capture
	if s.store != nil {
		if rec, err = s.store.Begin(ctx, keyword, target, folder); err != nil {
			log.Warn("server: record capture", "error", err)
		}
	}

	timeout := s.cfg.ShallowTimeout
	if deep {
		timeout = s.cfg.DeepTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	rep, err := s.engine.Capture(cctx, target, dir)
	s.finish(rec, rep, err, time.Since(start))

	if err != nil {
		if derr := bundle.Discard(dir); derr != nil {
			log.Warn("server: discard partial output", "dir", dir, "error", derr)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			log.Warn("server: capture timed out", "url", target, "timeout", timeout)
			writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "scraping timed out"})
			return
		}
		log.Error("server: capture failed", "url", target, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "scraping failed"})
		return
	}

	writeJSON(w, http.StatusOK, captureResponse{URL: &target, Folder: &folder})
}

// reserveFolder picks a unique folder name for target and creates it.
func (s *Server) reserveFolder(target string) (string, string, error) {
	name, err := bundle.FolderName(target)
	if err != nil {
		return "", "", err
	}

	s.folderMu.Lock()
	defer s.folderMu.Unlock()

	if err := os.MkdirAll(s.cfg.DownloadsDir, 0o755); err != nil {
		return "", "", err
	}
	folder, err := bundle.Unique(s.cfg.DownloadsDir, name)
	if err != nil {
		return "", "", err
	}
	dir := filepath.Join(s.cfg.DownloadsDir, folder)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", "", err
	}
	return folder, dir, nil
}

func (s *Server) finish(rec *store.Capture, rep *snapshot.Report, err error, elapsed time.Duration) {
	if s.store == nil || rec == nil {
		return
	}
	o := store.Outcome{Err: err, Duration: elapsed}
	if rep != nil {
		o.Assets, o.Written, o.Skipped = rep.Captured, rep.Written, rep.Skipped
	}
	// The request context may already be cancelled; record regardless.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ferr := s.store.Finish(ctx, rec.ID, o); ferr != nil {
		s.cfg.Logger.Warn("server: finish capture record", "id", rec.ID, "error", ferr)
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	if !bundle.ValidName(folder) {
		http.Error(w, "Folder not found", http.StatusNotFound)
		return
	}
	dir := filepath.Join(s.cfg.DownloadsDir, folder)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		http.Error(w, "Folder not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename="+folder+".zip")
	w.Header().Set("Content-Type", "application/zip")
	if err := bundle.Zip(w, dir); err != nil {
		GetLogger(r.Context()).Error("server: zip", "folder", folder, "error", err)
	}
}

func (s *Server) handleCaptures(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []*store.Capture{})
		return
	}
	list, err := s.store.Recent(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []*store.Capture{}
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
