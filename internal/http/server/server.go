package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"path"
	"runtime/debug"
	"strings"
	"time"

	"github.com/campusfin/clubsite/internal/auth"
	"github.com/campusfin/clubsite/internal/cache"
	"github.com/campusfin/clubsite/internal/config"
	"github.com/campusfin/clubsite/internal/db"
	"github.com/campusfin/clubsite/internal/media"
	"github.com/campusfin/clubsite/internal/migration"
	"github.com/campusfin/clubsite/internal/models"
	"github.com/campusfin/clubsite/internal/repository"
	"github.com/campusfin/clubsite/internal/uploads"
	"github.com/go-chi/chi/v5"
)

type Server struct {
	config   *config.Config
	db       *db.DB
	auth     *auth.AuthService
	cache    cache.Cache
	router   *chi.Mux
	repo     *repository.Repository
	storage  uploads.Storage
	issuer   *uploads.Issuer
	uploader *uploads.Client
}

type contextKey string

const userContextKey contextKey = "user"

const maxRequestBodyBytes = 1 << 20

const migrationSummarySettingKey = "media_migration_last_run"

const proxyMaxBodyBytes = 10 << 20

func New(cfg *config.Config) *Server {
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Printf("Using database: %s", cfg.Database.Path)

	cacheImpl := cache.New(database.Conn())
	cacheProvider := strings.ToLower(strings.TrimSpace(cfg.Cache.Provider))
	switch cacheProvider {
	case "redis":
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			UseTLS:   cfg.Cache.Redis.UseTLS,
		})
		if err != nil {
			log.Printf("Warning: failed to initialize redis cache: %v", err)
		} else {
			cacheImpl = redisCache
		}
	case "", "sqlite":
		if strings.TrimSpace(cfg.Cache.Directory) != "" {
			cachePath := cfg.Cache.Directory + "/http_cache.db"
			cacheDB, err := cache.NewWithPath(cachePath)
			if err != nil {
				log.Printf("Warning: failed to initialize cache DB at %s: %v", cachePath, err)
			} else {
				cacheImpl = cacheDB
			}
		}
	}

	storage, err := uploads.New(context.Background(), cfg.Uploads)
	if err != nil {
		log.Fatalf("Failed to initialize uploads storage: %v", err)
	}

	issuer := uploads.NewIssuer(storage, cfg.Uploads)

	s := &Server{
		config:   cfg,
		db:       database,
		auth:     auth.NewAuthService(cfg.Auth.SessionSecret, cfg.Auth.BcryptCost),
		cache:    cacheImpl,
		router:   chi.NewRouter(),
		repo:     repository.New(database.Conn()),
		storage:  storage,
		issuer:   issuer,
		uploader: uploads.NewClient(issuer),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Close() error {
	return s.db.Close()
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.recoverMiddleware)
	s.router.Use(s.securityHeadersMiddleware)
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.maxBodyMiddleware)
	s.router.Use(s.authMiddleware)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}
		limit := s.config.Uploads.MaxSize
		if limit <= 0 {
			limit = maxRequestBodyBytes
		}
		if r.ContentLength > limit {
			http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic serving %s %s: %v\n%s", r.Method, r.URL.Path, err, debug.Stack())
				s.respondError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the bearer credential, if any, into claims on the
// request context. Route guards decide whether a missing principal matters.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := s.auth.ValidateToken(token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		var disabledAt *string
		err = s.db.Conn().QueryRow(
			"SELECT disabled_at FROM users WHERE id = ?", claims.UserID,
		).Scan(&disabledAt)
		if err != nil || disabledAt != nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(userContextKey).(*auth.Claims)
	return claims
}

// requireRole guards admin routes. Viewer sessions can see nothing here;
// content editing needs editor, the migration needs admin.
func (s *Server) requireRole(minimum models.UserRole, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r)
		if claims == nil {
			s.respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !roleAllows(models.UserRole(claims.Role), minimum) {
			s.respondError(w, http.StatusForbidden, "Forbidden")
			return
		}
		next(w, r)
	}
}

func roleAllows(have, want models.UserRole) bool {
	rank := func(role models.UserRole) int {
		switch role {
		case models.RoleAdmin:
			return 3
		case models.RoleEditor:
			return 2
		case models.RoleViewer:
			return 1
		}
		return 0
	}
	return rank(have) >= rank(want)
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/ping", s.handlePing)
	s.router.Post("/api/login", s.handleLogin)
	s.router.Post("/api/logout", s.handleLogout)

	s.router.Get("/api/hero", s.handleHeroSlides)
	s.router.Get("/api/team", s.handleTeamMembers)
	s.router.Get("/api/events", s.handleEvents)
	s.router.Get("/api/notices", s.handleNotices)
	s.router.Get("/api/magazines", s.handleMagazines)
	s.router.Get("/img", s.handleImageProxy)
	s.router.Get("/media/*", s.handleServeMedia)

	s.router.Route("/api/admin", func(r chi.Router) {
		r.Post("/uploads/presign", s.requireRole(models.RoleEditor, s.handlePresign))
		r.Post("/uploads", s.requireRole(models.RoleEditor, s.handleDirectUpload))
		r.Delete("/media/*", s.requireRole(models.RoleEditor, s.handleDeleteMedia))
		r.Put("/content/{type}", s.requireRole(models.RoleEditor, s.handleReplaceContent))
		r.Post("/migrate-media", s.requireRole(models.RoleAdmin, s.handleMigrateMedia))
		r.Get("/migrate-media/last-run", s.requireRole(models.RoleAdmin, s.handleMigrationLastRun))
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"` // #nosec G117 -- request payload field.
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var userID int64
	var passwordHash string
	var role string
	var disabledAt *string

	err := s.db.Conn().QueryRow(
		"SELECT id, password_hash, role, disabled_at FROM users WHERE username = ?",
		req.Username,
	).Scan(&userID, &passwordHash, &role, &disabledAt)

	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := s.auth.CheckPassword(req.Password, passwordHash); err != nil {
		s.respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if disabledAt != nil {
		s.respondError(w, http.StatusForbidden, "account_disabled")
		return
	}

	token, err := s.auth.GenerateToken(userID, req.Username, role)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Tokens are stateless; the client discards its copy.
	w.WriteHeader(http.StatusOK)
}

// publicBase is the address prefix managed keys resolve under: the bucket's
// public URL when one is configured, otherwise this server's own /media
// route backed by the storage backend.
func (s *Server) publicBase() string {
	if base := strings.TrimSpace(s.config.Uploads.S3.PublicURL); base != "" {
		return base
	}
	return "/media"
}

// resolveImage rewrites a freshly-loaded image field to its display URL.
// Applied per row on copies owned by the request.
func (s *Server) resolveImage(field *models.ImageField) {
	resolved := media.Resolve(field.ImageURL, field.MediaKey, field.StorageProvider, s.publicBase())
	field.ImageURL = resolved
	field.MediaKey = nil
	field.StorageProvider = nil
}

func (s *Server) handleHeroSlides(w http.ResponseWriter, r *http.Request) {
	slides, err := s.repo.HeroSlides(r.Context())
	if err != nil {
		log.Printf("loading hero slides: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Unable to load hero slides")
		return
	}
	for _, slide := range slides {
		s.resolveImage(&slide.ImageField)
	}
	s.respondJSON(w, http.StatusOK, slides)
}

func (s *Server) handleTeamMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.repo.TeamMembers(r.Context())
	if err != nil {
		log.Printf("loading team members: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Unable to load team members")
		return
	}
	for _, member := range members {
		s.resolveImage(&member.ImageField)
	}
	s.respondJSON(w, http.StatusOK, members)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.repo.Events(r.Context())
	if err != nil {
		log.Printf("loading events: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Unable to load events")
		return
	}
	for _, event := range events {
		s.resolveImage(&event.ImageField)
	}
	s.respondJSON(w, http.StatusOK, events)
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	notices, err := s.repo.Notices(r.Context())
	if err != nil {
		log.Printf("loading notices: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Unable to load notices")
		return
	}
	for _, notice := range notices {
		s.resolveImage(&notice.ImageField)
	}
	s.respondJSON(w, http.StatusOK, notices)
}

func (s *Server) handleMagazines(w http.ResponseWriter, r *http.Request) {
	magazines, err := s.repo.Magazines(r.Context())
	if err != nil {
		log.Printf("loading magazines: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Unable to load magazines")
		return
	}
	s.respondJSON(w, http.StatusOK, magazines)
}

// handleImageProxy serves third-party images through a cached read-through
// path so pages keep loading when the original host is slow. Assets are
// treated as immutable for 24 hours.
func (s *Server) handleImageProxy(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		s.respondError(w, http.StatusBadRequest, "url parameter is required")
		return
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		s.respondError(w, http.StatusBadRequest, "url must be absolute http or https")
		return
	}

	cacheKey := imageCacheKey(raw)
	ttl := s.config.Cache.TTL.Proxy

	if entry, err := s.cache.Get(r.Context(), cache.NamespaceImageProxy, cacheKey); err == nil && entry != nil {
		serveProxyImage(w, entry.ContentType, entry.Payload)
		return
	} else if err != nil {
		log.Printf("image proxy cache read: %v", err)
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, raw, nil)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid url")
		return
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		s.respondError(w, http.StatusBadGateway, "unable to fetch image")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.respondError(w, http.StatusBadGateway, fmt.Sprintf("upstream returned %d", resp.StatusCode))
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, proxyMaxBodyBytes))
	if err != nil {
		s.respondError(w, http.StatusBadGateway, "unable to read image")
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	if err := s.cache.Set(r.Context(), cache.NamespaceImageProxy, cacheKey, body, contentType, ttl); err != nil {
		log.Printf("image proxy cache write: %v", err)
	}

	serveProxyImage(w, contentType, body)
}

func imageCacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

func serveProxyImage(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Printf("write proxied image: %v", err)
	}
}

func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename    string `json:"filename"`
		ContentType string `json:"contentType"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	ticket, err := s.issuer.Issue(r.Context(), req.Filename, req.ContentType)
	if err != nil {
		switch {
		case errors.Is(err, uploads.ErrInvalidInput):
			s.respondError(w, http.StatusBadRequest, "filename and contentType are required")
		case errors.Is(err, uploads.ErrNotConfigured):
			log.Printf("presign request with storage unconfigured: %v", err)
			s.respondError(w, http.StatusBadRequest, "uploads storage is not configured")
		default:
			log.Printf("issuing upload ticket: %v", err)
			s.respondError(w, http.StatusInternalServerError, "Unable to issue upload URL")
		}
		return
	}

	s.respondJSON(w, http.StatusOK, ticket)
}

// handleDirectUpload accepts a multipart file and writes it through the
// storage backend. This is the upload path for the local method; with S3
// configured it still works, but clients should prefer the presign flow.
func (s *Server) handleDirectUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.config.Uploads.MaxSize); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key, err := s.issuer.Store(r.Context(), header.Filename, contentType, file)
	if err != nil {
		if errors.Is(err, uploads.ErrInvalidInput) {
			s.respondError(w, http.StatusBadRequest, "filename and content type are required")
			return
		}
		log.Printf("storing upload: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Unable to store upload")
		return
	}

	s.respondJSON(w, http.StatusCreated, map[string]string{
		"key": key,
		"url": strings.TrimRight(s.publicBase(), "/") + "/" + key,
	})
}

// handleServeMedia serves stored objects for installs without a public
// bucket URL. Keys are immutable, so responses cache hard.
func (s *Server) handleServeMedia(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" || strings.Contains(key, "..") {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}

	reader, err := s.storage.Open(r.Context(), key)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}
	defer reader.Close()

	body, err := io.ReadAll(reader)
	if err != nil {
		log.Printf("reading stored object %s: %v", key, err)
		s.respondError(w, http.StatusInternalServerError, "Unable to read object")
		return
	}

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	serveProxyImage(w, contentType, body)
}

func (s *Server) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" || strings.Contains(key, "..") {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}

	if err := s.storage.Delete(r.Context(), key); err != nil {
		log.Printf("deleting stored object %s: %v", key, err)
		s.respondError(w, http.StatusInternalServerError, "Unable to delete object")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReplaceContent(w http.ResponseWriter, r *http.Request) {
	entityType := models.EntityType(chi.URLParam(r, "type"))
	if !entityType.Valid() {
		s.respondError(w, http.StatusNotFound, "unknown content type")
		return
	}

	ctx := r.Context()
	decoder := json.NewDecoder(r.Body)

	// An admin save bumps updated_at on every row it submits. Internal
	// rewrites (the media migration) go through the repository directly and
	// keep the timestamps they loaded.
	now := time.Now().UTC()

	var err error
	switch entityType {
	case models.EntityHeroSlides:
		var slides []*models.HeroSlide
		if err = decoder.Decode(&slides); err == nil {
			for _, slide := range slides {
				slide.UpdatedAt = now
			}
			err = s.repo.ReplaceHeroSlides(ctx, slides)
		}
	case models.EntityTeamMembers:
		var members []*models.TeamMember
		if err = decoder.Decode(&members); err == nil {
			for _, member := range members {
				member.UpdatedAt = now
			}
			err = s.repo.ReplaceTeamMembers(ctx, members)
		}
	case models.EntityEvents:
		var events []*models.Event
		if err = decoder.Decode(&events); err == nil {
			for _, event := range events {
				event.UpdatedAt = now
			}
			err = s.repo.ReplaceEvents(ctx, events)
		}
	case models.EntityNotices:
		var notices []*models.Notice
		if err = decoder.Decode(&notices); err == nil {
			for _, notice := range notices {
				notice.UpdatedAt = now
			}
			err = s.repo.ReplaceNotices(ctx, notices)
		}
	case models.EntityMagazines:
		var magazines []*models.Magazine
		if err = decoder.Decode(&magazines); err == nil {
			for _, magazine := range magazines {
				magazine.UpdatedAt = now
			}
			err = s.repo.ReplaceMagazines(ctx, magazines)
		}
	}

	if err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.EOF) {
			s.respondError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		log.Printf("replacing %s: %v", entityType, err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Unable to save %s", entityType))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MigrateMedia runs one full media migration pass and records its summary.
// Also invoked by the one-shot CLI mode.
func (s *Server) MigrateMedia(ctx context.Context) *models.MigrationSummary {
	orchestrator := migration.New(s.repo, s.uploader)
	orchestrator.Progress = func(completed, total int) {
		log.Printf("Media migration: %d%% (%d/%d types)", completed*100/total, completed, total)
	}

	summary := orchestrator.Run(ctx)

	if err := s.saveMigrationSummary(ctx, summary); err != nil {
		log.Printf("Warning: failed to record migration summary: %v", err)
	}
	return summary
}

func (s *Server) handleMigrateMedia(w http.ResponseWriter, r *http.Request) {
	summary := s.MigrateMedia(r.Context())

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": migration.Describe(summary),
		"moved":   summary.Moved,
		"total":   summary.TotalMoved(),
		"errors":  summary.Errors,
	})
}

func (s *Server) handleMigrationLastRun(w http.ResponseWriter, r *http.Request) {
	var value string
	err := s.db.Conn().QueryRowContext(r.Context(),
		"SELECT value FROM app_settings WHERE key = ?", migrationSummarySettingKey,
	).Scan(&value)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "no migration has run yet")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(value)); err != nil {
		log.Printf("write migration summary: %v", err)
	}
}

func (s *Server) saveMigrationSummary(ctx context.Context, summary *models.MigrationSummary) error {
	encoded, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding migration summary: %w", err)
	}
	_, err = s.db.Conn().ExecContext(ctx, `
		INSERT INTO app_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, migrationSummarySettingKey, string(encoded))
	return err
}
