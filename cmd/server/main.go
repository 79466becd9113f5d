package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/listsync/server/internal/config"
	"github.com/listsync/server/internal/handlers"
	custommw "github.com/listsync/server/internal/middleware"
	"github.com/listsync/server/internal/observability"
	"github.com/listsync/server/internal/repository"
	"github.com/listsync/server/internal/services"
)

const serviceVersion = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// Telemetry is best effort; the engine runs fine without a collector
	telemetry, err := observability.Initialize(rootCtx, observability.NewConfig("listsync-server", serviceVersion))
	if err != nil {
		log.Printf("Telemetry init failed, continuing without: %v", err)
	}

	// Initialize database and stores
	var db *sql.DB
	if cfg.UsePostgres() {
		log.Println("Using PostgreSQL database")
		db, err = repository.NewPostgresDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL database: %v", err)
		}
	} else {
		log.Println("Using SQLite database")
		db, err = repository.NewSQLiteDB(cfg.DatabasePath)
		if err != nil {
			// A corrupt store file must never brick the server.
			log.Printf("Failed to open SQLite store: %v", err)
			db, err = repository.RecreateSQLiteDB(cfg.DatabasePath)
			if err != nil {
				log.Fatalf("Failed to recreate SQLite store: %v", err)
			}
		}
	}
	defer db.Close()

	stores := repository.NewStores(db)

	metrics, err := observability.NewSyncMetrics()
	if err != nil {
		log.Printf("Sync metrics init failed, continuing without: %v", err)
		metrics = nil
	}

	// Initialize the sync engine and its replica links
	engine := services.NewSyncEngine(stores, metrics, services.EngineOptions{
		QuietWindow:        cfg.QuietWindow(),
		PayloadLimit:       cfg.CompanionPayloadLimit(),
		SeedStarterContent: cfg.Sync.SeedStarterContent,
	})
	adapter := services.NewCompanionAdapter(engine, stores)
	hub := services.NewCompanionHub(engine, adapter, cfg.CompanionPayloadLimit())
	engine.SetCompanionTransport(hub)

	cloud := services.NewCloudClient(cfg.Sync.CloudRelayURL, engine)
	engine.SetCloudTransport(cloud)

	// Transports are wired before the apply loop or any pump starts, so
	// the engine never observes a half-configured replica set.
	go engine.Run(rootCtx)
	go hub.Run()
	go cloud.Run(rootCtx)

	if err := engine.SeedIfEmpty(rootCtx); err != nil {
		log.Printf("Starter seeding failed: %v", err)
	}
	if err := engine.TriggerManualSync(rootCtx); err != nil {
		log.Printf("Initial reconciliation failed: %v", err)
	}

	importer := services.NewImporter(stores, engine, metrics)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	listHandler := handlers.NewListHandler(engine)
	itemHandler := handlers.NewItemHandler(engine)
	imageHandler := handlers.NewImageHandler(engine, stores)
	preferencesHandler := handlers.NewPreferencesHandler(engine)
	importHandler := handlers.NewImportHandler(importer)
	syncHandler := handlers.NewSyncHandler(engine)
	wsHandler := handlers.NewWebSocketHandler(hub)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware("listsync-server"))
	if httpMetrics, err := observability.NewHTTPMetrics(); err == nil {
		r.Use(observability.MetricsMiddleware(httpMetrics))
	}
	r.Use(custommw.APIKeyAuth(cfg.Security.APIKey, cfg.Security.APIKeyHeader))

	// Routes
	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/api/health", healthHandler.HealthCheck)
	r.Get("/api/version", handlers.VersionHandler)

	r.Route("/api/lists", func(r chi.Router) {
		r.Get("/", listHandler.GetLists)
		r.Post("/", listHandler.CreateList)
		r.Get("/{id}", listHandler.GetList)
		r.Put("/{id}", listHandler.UpdateList)
		r.Post("/{id}/archive", listHandler.ArchiveList)
		r.Delete("/{id}", listHandler.DeleteList)
		r.Post("/{id}/items", itemHandler.CreateItem)
	})

	r.Route("/api/items", func(r chi.Router) {
		r.Put("/{id}", itemHandler.UpdateItem)
		r.Delete("/{id}", itemHandler.DeleteItem)
		r.Post("/{id}/images", imageHandler.AddImage)
	})

	r.Route("/api/images", func(r chi.Router) {
		r.Get("/{id}", imageHandler.GetImage)
		r.Delete("/{id}", imageHandler.DeleteImage)
	})

	r.Route("/api/preferences", func(r chi.Router) {
		r.Get("/", preferencesHandler.GetPreferences)
		r.Put("/", preferencesHandler.UpdatePreferences)
	})

	r.Route("/api/import", func(r chi.Router) {
		r.Post("/", importHandler.Import)
		r.Post("/preview", importHandler.Preview)
	})

	r.Route("/api/sync", func(r chi.Router) {
		r.Get("/status", syncHandler.Status)
		r.Post("/trigger", syncHandler.Trigger)
	})

	r.Get("/ws/companion", wsHandler.HandleCompanion)

	// Create server
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Longer for image uploads
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("ListSync Server starting on %s", cfg.ServerAddress)
		log.Printf("Debounce quiet window: %s", cfg.QuietWindow())
		log.Printf("Companion payload ceiling: %d bytes", cfg.CompanionPayloadLimit())

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(ctx); err != nil {
			log.Printf("Telemetry shutdown failed: %v", err)
		}
	}

	log.Println("Server stopped")
}
