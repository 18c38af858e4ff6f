package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/helio-ops/solsyncbackend/cloudstore"
	"github.com/helio-ops/solsyncbackend/config"
	"github.com/helio-ops/solsyncbackend/database"
	"github.com/helio-ops/solsyncbackend/handlers"
	"github.com/helio-ops/solsyncbackend/imagestore"
	"github.com/helio-ops/solsyncbackend/realtime"
	"github.com/helio-ops/solsyncbackend/repository"
	syncengine "github.com/helio-ops/solsyncbackend/sync"
	"github.com/helio-ops/solsyncbackend/workers"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	storagePaths := []string{cfg.ImagesPath, cfg.ThumbnailsPath, cfg.ArchivesPath, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: Failed to migrate database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("FATAL: Failed to get underlying sql.DB: %v", err)
	}

	localImageRepo := repository.NewLocalImageRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	installationRepo := repository.NewInstallationRepository(db)
	imageTypeRepo := repository.NewRequiredImageTypeRepository(db)
	userRepo := repository.NewUserRepository(db)

	store, err := imagestore.NewLocalStorage(cfg.ImagesPath, imagestore.Limits{
		MaxSizeBytes:             cfg.MaxUploadSizeBytes,
		AllowedExtensions:        cfg.AllowedExtensions,
		MaxImagesPerType:         cfg.MaxImagesPerType,
		MaxImagesPerInstallation: cfg.MaxImagesPerInstallation,
	}, localImageRepo.CountActive)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize image store: %v", err)
	}

	cloudClient, err := cloudstore.NewMinioClient(cfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to connect to object store: %v", err)
	}

	hub := realtime.NewHub()
	go hub.Run()

	log.Printf("Initializing thumbnail worker pool (Workers: %d, Queue Size: %d)...", cfg.NumThumbnailWorkers, cfg.ThumbnailQueueSize)
	thumbGen := workers.NewThumbnailProcessor(cfg, localImageRepo, cfg.ThumbnailQueueSize, cfg.NumThumbnailWorkers)

	coordinator := syncengine.NewCoordinator(localImageRepo, catalogRepo, cloudClient, store, cfg, hub)
	coordinator.Start()

	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Storing images in: %s", cfg.ImagesPath)
	log.Printf("Sync interval: %d minute(s), max concurrent uploads: %d", cfg.SyncIntervalMinutes, cfg.MaxConcurrentUploads)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"}, //TODO: configurable
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsHandler.Handler)

	installationHandler := &handlers.InstallationHandler{
		Installations: installationRepo,
		ImageTypes:    imageTypeRepo,
		LocalImages:   localImageRepo,
		Store:         store,
		SQLDB:         sqlDB,
		Cfg:           cfg,
	}
	imageTypeHandler := &handlers.ImageTypeHandler{ImageTypes: imageTypeRepo}
	imageHandler := &handlers.ImageHandler{
		LocalImages: localImageRepo,
		ImageTypes:  imageTypeRepo,
		Store:       store,
		Coordinator: coordinator,
		ThumbGen:    thumbGen,
		Cfg:         cfg,
	}
	syncHandler := &handlers.SyncHandler{Coordinator: coordinator}
	userHandler := &handlers.UserHandler{Users: userRepo}

	r.Route("/api", func(r chi.Router) {
		r.Route("/installations", func(r chi.Router) {
			r.Post("/", installationHandler.CreateInstallation)
			r.Get("/", installationHandler.ListInstallations)
			r.Get("/report", installationHandler.GetCompletenessReport)
			r.Route("/{installation_id}", func(r chi.Router) {
				r.Get("/", installationHandler.GetInstallation)
				r.Get("/archive", installationHandler.DownloadArchive)
				r.Post("/images", imageHandler.CaptureImage)
				r.Get("/images", imageHandler.ListImages)
			})
		})

		r.Route("/image-types", func(r chi.Router) {
			r.Post("/", imageTypeHandler.CreateImageType)
			r.Get("/", imageTypeHandler.ListImageTypes)
		})

		r.Route("/images/{image_id}", func(r chi.Router) {
			r.Post("/upload", imageHandler.UploadImage)
			r.Delete("/", imageHandler.DeleteImage)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", userHandler.CreateUser)
			r.Get("/", userHandler.ListUsers)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", syncHandler.GetStatus)
			r.Post("/run", syncHandler.RunSync)
		})

		thumbnailSubDir := filepath.Base(cfg.ThumbnailsPath)
		r.Get("/"+thumbnailSubDir+"/*", handlers.AssetServer(cfg.MediaStoragePath, thumbnailSubDir))
		log.Printf("Registered thumbnail server at /%s/*", thumbnailSubDir)
	})

	r.Get("/ws", hub.ServeWS)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	serverAddr := ":" + port
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received")

	coordinator.Stop()
	thumbGen.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
