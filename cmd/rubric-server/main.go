package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"

	_ "github.com/lib/pq"

	"github.com/PhucNguyen204/rubricfeed/internal/config"
	srv "github.com/PhucNguyen204/rubricfeed/internal/server"
	"github.com/PhucNguyen204/rubricfeed/pkg/rubric"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	cfg, err := config.Load(getenv("RUBRIC_CONFIG", ""))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	engine, err := cfg.Engine.Build()
	if err != nil {
		log.Fatalf("engine config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	if err := db.Ping(); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	opts := []rubric.Option{rubric.WithEngineConfig(engine), rubric.WithWorkers(cfg.Server.Workers)}

	// Start with an empty registry; rules are loaded below if present
	empty, err := rubric.Build(rubric.Config{}, opts...)
	if err != nil {
		log.Fatalf("init registry: %v", err)
	}

	server := srv.NewAppServer(db, empty, opts...)
	server.MaxBatch = cfg.Server.MaxBatch
	server.SetFeedRetention(cfg.Server.FeedRetention)
	if err := server.InitSchema(); err != nil {
		log.Fatalf("init schema: %v", err)
	}
	if st, err := os.Stat(cfg.Rules.Path); err == nil && st.IsDir() {
		if files, err := server.LoadConfigDir(context.Background(), cfg.Rules.Path); err != nil {
			log.Printf("failed to load rubrics from %s: %v", cfg.Rules.Path, err)
		} else {
			log.Printf("loaded rubrics from %s: files=%d", cfg.Rules.Path, files)
		}
	}

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	log.Printf("rubric server listening on %s", cfg.Server.Addr)
	if err := http.ListenAndServe(cfg.Server.Addr, mux); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
