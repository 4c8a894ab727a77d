package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kpbuilder/api/internal/app"
	"kpbuilder/api/internal/config"
	"kpbuilder/api/internal/email"
	"kpbuilder/api/internal/export"
	"kpbuilder/api/internal/pdfcache"
	"kpbuilder/api/internal/search"
	"kpbuilder/api/internal/storage"
	"kpbuilder/api/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	pool := store.DefaultPoolOptions()
	pool.MaxOpenConns = cfg.DBMaxConns
	pool.MaxIdleConns = max(cfg.DBMaxConns/2, 1)
	db, err := store.Open(ctx, cfg.DatabaseURL, pool)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir))
	if err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	log.Printf("Migrations up to date (%d applied)", len(applied))

	dataStore := store.NewPostgresStore(db)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewStoreSearcher(dataStore))
	if searchService.Healthy() {
		products, err := dataStore.ListAllProducts(ctx)
		if err != nil {
			log.Printf("WARNING: load catalog for indexing: %v", err)
		} else if err := searchService.Reindex(products); err != nil {
			log.Printf("WARNING: reindex catalog: %v", err)
		}
	}

	exports := export.NewService(dataStore, export.NewChromePDF(cfg.PDFTimeout, cfg.ChromePath), export.Pandoc{ReferenceDoc: cfg.DOCXReferenceDoc}).
		WithShareSecret([]byte(cfg.ShareSecret))

	service := app.NewService(cfg, dataStore, exports, searchService)

	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err := pdfcache.NewRedisCache(cfg.RedisURL, cfg.PDFCacheTTL)
		if err != nil {
			log.Printf("WARNING: pdf cache disabled: %v", err)
		} else {
			log.Printf("Using Redis for PDF cache")
			defer cache.Close()
			exports.WithCache(cache)
			service.WithPDFCache(cache)
		}
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archive, err := storage.NewArchive(ctx, storage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Printf("WARNING: pdf archive disabled: %v", err)
		} else {
			log.Printf("Archiving PDFs to bucket %s", archive.Bucket())
			exports.WithArchive(archive)
			service.WithArchive(archive)
		}
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		log.Printf("Share link emails enabled via %s", cfg.SMTPHost)
		service.WithMailer(mailer)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.PDFTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("KP Builder API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
