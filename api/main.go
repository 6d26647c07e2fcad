package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"gantry/api/adapter"
	"gantry/api/config"
	"gantry/api/cron"
	"gantry/api/engine"
	"gantry/api/handler"
	"gantry/api/hub"
	"gantry/api/journal"
	"gantry/api/model"
	"gantry/api/storage"
	"gantry/api/store"
)

func main() {
	cfg := config.Load()

	// Database
	db, err := store.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		log.Fatalf("migration: %v", err)
	}

	// S3
	var s3Client *storage.Client
	if cfg.S3Endpoint != "" {
		s3Client, err = storage.NewClient(storage.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			log.Printf("WARNING: S3 storage unavailable (%v)", err)
		} else {
			if err := s3Client.EnsureBucket(context.Background()); err != nil {
				log.Printf("WARNING: S3 bucket: %v", err)
			}
			log.Println("S3 storage connected at " + cfg.S3Endpoint)
		}
	}

	// WebSocket hub
	allowedOrigins := []string{"http://localhost:5173", "http://localhost:3000"}
	if cfg.AllowedOrigins != "" {
		for _, o := range strings.Split(cfg.AllowedOrigins, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	ws := hub.New(allowedOrigins)
	go ws.Run()

	// Journal store
	js := journal.NewPostgresStore(db.Pool)

	// Integration adapters. The stub set runs every family in-process;
	// real integrations register here per family.
	adapters := adapter.Registry{
		model.FamilySourceControl: adapter.NewStub(model.FamilySourceControl),
		model.FamilyIssueTracker:  adapter.NewStub(model.FamilyIssueTracker),
		model.FamilyTestMgmt:      adapter.NewStub(model.FamilyTestMgmt),
		model.FamilyCICD:          adapter.NewStub(model.FamilyCICD),
		model.FamilyAppStore:      adapter.NewStub(model.FamilyAppStore),
	}

	// Orchestration engine
	eng := engine.New(db, adapters, js, ws)

	// Seed release plans from disk
	if cfg.PlansDir != "" {
		plans, err := model.DiscoverPlans(cfg.PlansDir)
		if err != nil {
			log.Printf("WARNING: plan discovery: %v", err)
		} else {
			eng.SeedPlans(context.Background(), plans)
		}
	}

	// Coordinator
	coord := cron.New(eng, cfg.TickInterval)
	if err := coord.Start(); err != nil {
		log.Fatalf("coordinator: %v", err)
	}
	defer coord.Stop()

	// Handler
	h := handler.New(db, eng, js, ws, cfg, s3Client)

	// Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	// Bearer token auth
	if cfg.APIToken != "" {
		r.Use(bearerAuth(cfg.APIToken))
		log.Println("API token auth enabled")
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"version": Version})
		})

		r.Post("/webhooks/{provider}", h.Webhook)

		r.Get("/journal", h.RecentJournal)

		r.Get("/releases", h.ListReleases)
		r.Post("/releases", h.CreateRelease)

		r.Route("/releases/{id}", func(r chi.Router) {
			r.Use(handler.ValidateID)
			r.Get("/", h.GetRelease)
			r.Get("/journal", h.ReleaseJournal)
			r.Post("/advance", h.Advance)
			r.Put("/auto-advance", h.SetAutoAdvance)
			r.Get("/builds", h.ListBuilds)
			r.Post("/builds", h.UploadBuild)
		})

		r.Route("/tasks/{taskId}", func(r chi.Router) {
			r.Use(handler.ValidateID)
			r.Post("/retry", h.RetryTask)
		})

		r.Route("/cycles/{cycleId}", func(r chi.Router) {
			r.Use(handler.ValidateID)
			r.Post("/abandon", h.AbandonCycle)
		})
	})

	r.Get("/ws", ws.HandleConnect)

	// Serve UI static files
	if cfg.UIDir != "" {
		fileServer(r, cfg.UIDir)
	}

	srv := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("gantry %s listening on %s:%s", Version, cfg.BindAddr, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/ws" || r.URL.Path == "/api/health" || r.URL.Path == "/api/version" || strings.HasPrefix(r.URL.Path, "/api/webhooks/") {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(auth[7:]), []byte(token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func fileServer(r chi.Router, dir string) {
	fs := http.FileServer(http.Dir(dir))
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(dir + r.URL.Path); os.IsNotExist(err) {
			http.ServeFile(w, r, dir+"/index.html")
			return
		}
		fs.ServeHTTP(w, r)
	})
}
