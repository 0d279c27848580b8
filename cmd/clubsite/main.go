package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campusfin/clubsite/internal/config"
	"github.com/campusfin/clubsite/internal/http/server"
	"github.com/campusfin/clubsite/internal/migration"
)

var (
	configFile      = flag.String("config", "config.yaml", "Path to configuration file")
	version         = flag.Bool("version", false, "Show version information")
	migrateMedia    = flag.Bool("migrate-media", false, "Run the media migration once and exit")
	serverAddress   = flag.String("address", "", "Server address (host:port)")
	serverHost      = flag.String("host", "", "Server host")
	serverPort      = flag.Int("port", 0, "Server port")
	databasePath    = flag.String("db-path", "", "Database path")
	authSecret      = flag.String("auth-secret", "", "Auth session secret")
	authBcryptCost  = flag.Int("auth-bcrypt-cost", 0, "Auth bcrypt cost")
	uploadsMethod   = flag.String("uploads-method", "", "Uploads method (local or s3)")
	uploadsDir      = flag.String("uploads-dir", "", "Uploads directory (local method)")
	uploadsMaxSize  = flag.Int64("uploads-max-size", 0, "Uploads max size (bytes)")
	s3Bucket        = flag.String("s3-bucket", "", "Uploads S3 bucket")
	s3Region        = flag.String("s3-region", "", "Uploads S3 region")
	s3Endpoint      = flag.String("s3-endpoint", "", "Uploads S3 endpoint")
	s3PublicURL     = flag.String("s3-public-url", "", "Uploads S3 public base URL")
	s3Prefix        = flag.String("s3-prefix", "", "Uploads S3 key prefix")
	s3PresignExpiry = flag.Duration("s3-presign-expiry", 0, "Presigned upload URL lifetime")
	cacheProvider   = flag.String("cache-provider", "", "Cache provider (sqlite or redis)")
	cacheDir        = flag.String("cache-dir", "", "Cache directory")
	cacheDefaultTTL = flag.Duration("cache-ttl-default", 0, "Cache default TTL")
	cacheProxyTTL   = flag.Duration("cache-ttl-proxy", 0, "Image proxy cache TTL")
	cacheRedisAddr  = flag.String("cache-redis-addr", "", "Redis address (host:port)")
	appNameFlag     = flag.String("app-name", "", "Application name")
)

const (
	appName    = "Clubsite"
	appVersion = "1.0.0"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", appName, appVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	overrides := config.Overrides{}
	if *serverAddress != "" {
		overrides.ServerAddress = serverAddress
	} else if *serverHost != "" || *serverPort != 0 {
		host, port := splitAddress(cfg.Server.Address)
		if *serverHost != "" {
			host = *serverHost
		}
		if *serverPort != 0 {
			port = fmt.Sprintf("%d", *serverPort)
		}
		if host == "" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		address := fmt.Sprintf("%s:%s", host, port)
		overrides.ServerAddress = &address
	}
	if *databasePath != "" {
		overrides.DatabasePath = databasePath
	}
	if *authSecret != "" {
		overrides.AuthSessionSecret = authSecret
	}
	if *authBcryptCost != 0 {
		overrides.AuthBcryptCost = authBcryptCost
	}
	if *uploadsMethod != "" {
		overrides.UploadsMethod = uploadsMethod
	}
	if *uploadsDir != "" {
		overrides.UploadsLocalDir = uploadsDir
	}
	if *uploadsMaxSize != 0 {
		overrides.UploadsMaxSize = uploadsMaxSize
	}
	if *s3Bucket != "" {
		overrides.UploadsS3Bucket = s3Bucket
	}
	if *s3Region != "" {
		overrides.UploadsS3Region = s3Region
	}
	if *s3Endpoint != "" {
		overrides.UploadsS3Endpoint = s3Endpoint
	}
	if *s3PublicURL != "" {
		overrides.UploadsS3PublicURL = s3PublicURL
	}
	if *s3Prefix != "" {
		overrides.UploadsS3Prefix = s3Prefix
	}
	if *s3PresignExpiry != 0 {
		overrides.UploadsS3Expiry = s3PresignExpiry
	}
	if *cacheProvider != "" {
		overrides.CacheProvider = cacheProvider
	}
	if *cacheDir != "" {
		overrides.CacheDirectory = cacheDir
	}
	if *cacheDefaultTTL != 0 {
		overrides.CacheTTLDefault = cacheDefaultTTL
	}
	if *cacheProxyTTL != 0 {
		overrides.CacheTTLProxy = cacheProxyTTL
	}
	if *cacheRedisAddr != "" {
		overrides.CacheRedisAddr = cacheRedisAddr
	}
	if *appNameFlag != "" {
		overrides.AppName = appNameFlag
	}

	if err := cfg.ApplyOverrides(overrides); err != nil {
		log.Fatalf("Failed to apply overrides: %v", err)
	}

	srv := server.New(cfg)

	if *migrateMedia {
		runMediaMigration(srv)
		return
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Starting %s server on %s", appName, cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMediaMigration is the one-shot mode for operators and cron jobs. The
// exit code reflects whether anything was skipped, so a wrapping script can
// alert and re-run.
func runMediaMigration(srv *server.Server) {
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	summary := srv.MigrateMedia(ctx)
	log.Println(migration.Describe(summary))
	for _, migrationErr := range summary.Errors {
		if migrationErr.EntityID != "" {
			log.Printf("  %s/%s: %s", migrationErr.EntityType, migrationErr.EntityID, migrationErr.Message)
		} else {
			log.Printf("  %s: %s", migrationErr.EntityType, migrationErr.Message)
		}
	}
	if len(summary.Errors) > 0 {
		os.Exit(1)
	}
}

func splitAddress(address string) (string, string) {
	if address == "" {
		return "", ""
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return "", ""
	}
	return host, port
}
