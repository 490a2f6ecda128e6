package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/satoruisaka/TwistedDebate/internal/config"
	"github.com/satoruisaka/TwistedDebate/internal/ollama"
	"github.com/satoruisaka/TwistedDebate/internal/storage"
	"github.com/satoruisaka/TwistedDebate/web/handlers"
)

func main() {
	port := flag.Int("port", 0, "Server port (default from config)")
	configPath := flag.String("config", "", "Config file path (default: ~/.twistd/config.yaml)")
	dbPath := flag.String("db", "", "Database path (default: ~/.twistd/twistd.db)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Initialize slog
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if *debug {
		opts.Level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(logger)

	// Load configuration
	path := *configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		slog.Error("Failed to load config", "path", path, "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Archive.DBPath = *dbPath
	}

	// Initialize storage
	slog.Info("Initializing storage", "path", cfg.Archive.DBPath)
	store, err := storage.NewSQLiteStorage(cfg.Archive.DBPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Initialize(); err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}

	// Connect to Ollama
	client := ollama.NewClient(cfg.Ollama.URL)

	// Create handler
	h := handlers.New(cfg, client, client, store)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: h.Routes(),
	}

	// Handle shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		slog.Info("Shutting down...")
		server.Close()
	}()

	slog.Info("Starting TwistedDebate web server", "url", fmt.Sprintf("http://localhost%s", addr), "ollama", cfg.Ollama.URL)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
