// Command pagesnap captures live web pages as static, self-contained
// snapshots.
//
// Usage:
//
//	pagesnap -url https://example.com             # one snapshot into downloads/example-com
//	pagesnap -keyword "example" -out ./site       # resolve a keyword, then snapshot
//	pagesnap -serve -config pagesnap.yaml         # run the HTTP API
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hazyhaar/pagesnap/bundle"
	"github.com/hazyhaar/pagesnap/resolver"
	"github.com/hazyhaar/pagesnap/server"
	"github.com/hazyhaar/pagesnap/snapshot"
	"github.com/hazyhaar/pagesnap/store"
)

func main() {
	configPath := flag.String("config", "", "path to pagesnap.yaml config file")
	serve := flag.Bool("serve", false, "run the HTTP API")
	singleURL := flag.String("url", "", "snapshot a single URL and exit")
	keyword := flag.String("keyword", "", "resolve a keyword to a website, snapshot it and exit")
	outDir := flag.String("out", "", "output directory for -url/-keyword (default: <downloads>/<folder>)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("pagesnap: config", "error", err)
		os.Exit(1)
	}

	switch {
	case *serve:
		err = runServer(ctx, logger, cfg)
	case *singleURL != "" || *keyword != "":
		err = runOnce(ctx, logger, cfg, *singleURL, *keyword, *outDir)
	default:
		fmt.Fprintln(os.Stderr, "usage: pagesnap -url <url> | -keyword <text> [-out dir] | -serve [-config file]")
		os.Exit(2)
	}
	if err != nil {
		logger.Error("pagesnap: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*snapshot.Config, error) {
	cfg := snapshot.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = snapshot.LoadConfigFile(path); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	cfg.Resolver.APIKey = env("GEMINI_API_KEY", cfg.Resolver.APIKey)
	cfg.Browser.Remote = env("CHROME_REMOTE_URL", cfg.Browser.Remote)
	cfg.Server.DownloadsDir = env("DOWNLOADS_DIR", cfg.Server.DownloadsDir)
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	return cfg, nil
}

func newResolver(logger *slog.Logger, cfg *snapshot.Config) resolver.Resolver {
	if cfg.Resolver.APIKey == "" {
		logger.Warn("pagesnap: no resolver API key, only direct URLs are accepted")
		return nil
	}
	llm := resolver.NewLLM(resolver.LLMConfig{
		BaseURL: cfg.Resolver.BaseURL,
		APIKey:  cfg.Resolver.APIKey,
		Model:   cfg.Resolver.Model,
		Timeout: cfg.Resolver.Timeout,
		Logger:  logger,
	})
	return resolver.WithRetry(llm, cfg.Resolver.Retries(), cfg.Resolver.Backoff, logger)
}

func runOnce(ctx context.Context, logger *slog.Logger, cfg *snapshot.Config, rawURL, keyword, out string) error {
	target := rawURL
	if target == "" {
		res := newResolver(logger, cfg)
		if res == nil {
			res = resolver.Func(func(context.Context, string) (string, error) { return "", resolver.ErrNoResult })
		}
		u, err := resolver.WithDirect(res).Resolve(ctx, keyword)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", keyword, err)
		}
		logger.Info("pagesnap: resolved", "keyword", keyword, "url", u)
		target = u
	}

	if out == "" {
		name, err := bundle.FolderName(target)
		if err != nil {
			return err
		}
		if name, err = bundle.Unique(cfg.Server.DownloadsDir, name); err != nil {
			return err
		}
		out = filepath.Join(cfg.Server.DownloadsDir, name)
	}

	// Only a directory this run creates may be discarded on failure.
	_, statErr := os.Stat(out)
	fresh := errors.Is(statErr, fs.ErrNotExist)

	engine := snapshot.New(cfg, logger)
	rep, err := engine.Capture(ctx, target, out)
	if err != nil {
		if fresh {
			if derr := bundle.Discard(out); derr != nil {
				logger.Warn("pagesnap: discard partial output", "dir", out, "error", derr)
			}
		}
		return err
	}

	rep.Assets = nil
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func runServer(ctx context.Context, logger *slog.Logger, cfg *snapshot.Config) error {
	st, err := store.Open(cfg.Server.DBPath, store.WithMkdirAll())
	if err != nil {
		return err
	}
	defer st.Close()

	srv := server.New(server.Config{
		DownloadsDir:   cfg.Server.DownloadsDir,
		ShallowTimeout: cfg.Server.ShallowTimeout,
		DeepTimeout:    cfg.Server.DeepTimeout,
		MaxConcurrent:  cfg.Server.MaxConcurrent,
		BlockPrivate:   cfg.Server.BlockPrivate,
		Logger:         logger,
	}, snapshot.New(cfg, logger), newResolver(logger, cfg), st)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.DeepTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("pagesnap: server starting", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("pagesnap: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("pagesnap: shutdown", "error", err)
	}
	logger.Info("pagesnap: server stopped")
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
