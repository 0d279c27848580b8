package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/campusfin/clubsite/internal/auth"
	"github.com/campusfin/clubsite/internal/config"
	"github.com/campusfin/clubsite/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server:   config.ServerConfig{Address: ":0"},
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "test.db")},
		Auth:     config.AuthConfig{SessionSecret: "test-secret", BcryptCost: 4},
		Uploads: config.UploadsConfig{
			Method:  "local",
			MaxSize: 10 * 1024 * 1024,
			Local:   config.UploadsLocalConfig{Directory: filepath.Join(dir, "uploads")},
			S3:      config.UploadsS3Config{PresignExpiry: 15 * time.Minute},
		},
		Cache: config.CacheConfig{
			Provider: "sqlite",
			TTL:      config.CacheTTLConfig{Default: 24 * time.Hour, Proxy: 24 * time.Hour},
		},
		App: config.AppConfig{Name: "Clubsite"},
	}
}

// s3TestConfig points the S3 backend at a fake endpoint so presigning works
// offline and uploads land on a local httptest server.
func s3TestConfig(t *testing.T, endpoint string) *config.Config {
	cfg := testConfig(t)
	cfg.Uploads.Method = "s3"
	cfg.Uploads.S3 = config.UploadsS3Config{
		Bucket:          "club-media",
		Region:          "auto",
		Endpoint:        endpoint,
		PublicURL:       "https://media.club.example",
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
		PathStyle:       true,
		PresignExpiry:   15 * time.Minute,
	}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv := New(cfg)
	t.Cleanup(func() {
		srv.Close()
	})
	return srv
}

// seedUser inserts a user directly and returns a valid bearer token for it.
func seedUser(t *testing.T, cfg *config.Config, username string, role models.UserRole) string {
	t.Helper()
	conn, err := sql.Open("sqlite", cfg.Database.Path)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer conn.Close()

	service := auth.NewAuthService(cfg.Auth.SessionSecret, cfg.Auth.BcryptCost)
	hash, err := service.HashPassword("password123")
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}

	result, err := conn.Exec(
		"INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)",
		username, hash, string(role),
	)
	if err != nil {
		t.Fatalf("inserting user: %v", err)
	}
	userID, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}

	token, err := service.GenerateToken(userID, username, string(role))
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	srv.ServeHTTP(recorder, req)
	return recorder
}

func TestPing(t *testing.T) {
	srv := newTestServer(t, testConfig(t))
	resp := doJSON(t, srv, http.MethodGet, "/api/ping", "", nil)
	if resp.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.Code)
	}
}

func TestLogin(t *testing.T) {
	cfg := testConfig(t)
	srv := newTestServer(t, cfg)
	seedUser(t, cfg, "alex", models.RoleAdmin)

	resp := doJSON(t, srv, http.MethodPost, "/api/login", "", map[string]string{
		"username": "alex",
		"password": "password123",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["token"] == "" {
		t.Error("expected a token in the response")
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	cfg := testConfig(t)
	srv := newTestServer(t, cfg)
	seedUser(t, cfg, "alex", models.RoleAdmin)

	resp := doJSON(t, srv, http.MethodPost, "/api/login", "", map[string]string{
		"username": "alex",
		"password": "wrong",
	})
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.Code)
	}
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	resp := doJSON(t, srv, http.MethodPost, "/api/login", "", map[string]string{
		"username": "ghost",
		"password": "password123",
	})
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.Code)
	}
}

func TestPresignRequiresAuth(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	resp := doJSON(t, srv, http.MethodPost, "/api/admin/uploads/presign", "", map[string]string{
		"filename":    "photo.png",
		"contentType": "image/png",
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["error"] != "Unauthorized" {
		t.Errorf("expected error envelope, got %v", body)
	}
}

func TestPresignRejectsViewer(t *testing.T) {
	cfg := testConfig(t)
	srv := newTestServer(t, cfg)
	token := seedUser(t, cfg, "viewer", models.RoleViewer)

	resp := doJSON(t, srv, http.MethodPost, "/api/admin/uploads/presign", token, map[string]string{
		"filename":    "photo.png",
		"contentType": "image/png",
	})
	if resp.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.Code)
	}
}

func TestPresignUnconfiguredStorage(t *testing.T) {
	cfg := testConfig(t)
	srv := newTestServer(t, cfg)
	token := seedUser(t, cfg, "editor", models.RoleEditor)

	resp := doJSON(t, srv, http.MethodPost, "/api/admin/uploads/presign", token, map[string]string{
		"filename":    "photo.png",
		"contentType": "image/png",
	})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("local storage cannot presign; expected 400, got %d", resp.Code)
	}
}

func TestPresignIssuesTicket(t *testing.T) {
	bucket := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer bucket.Close()

	cfg := s3TestConfig(t, bucket.URL)
	srv := newTestServer(t, cfg)
	token := seedUser(t, cfg, "editor", models.RoleEditor)

	resp := doJSON(t, srv, http.MethodPost, "/api/admin/uploads/presign", token, map[string]string{
		"filename":    "Club Photo.PNG",
		"contentType": "image/png",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var ticket struct {
		UploadURL string `json:"uploadUrl"`
		PublicURL string `json:"publicUrl"`
		Key       string `json:"key"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &ticket); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if ticket.Key == "" || !strings.HasSuffix(ticket.Key, ".png") {
		t.Errorf("unexpected key: %q", ticket.Key)
	}
	if !strings.Contains(ticket.UploadURL, "X-Amz-Signature") {
		t.Errorf("upload URL is not presigned: %s", ticket.UploadURL)
	}
	if ticket.PublicURL != "https://media.club.example/"+ticket.Key {
		t.Errorf("public URL %q does not address the key", ticket.PublicURL)
	}
}

func TestPresignValidatesInput(t *testing.T) {
	bucket := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer bucket.Close()

	cfg := s3TestConfig(t, bucket.URL)
	srv := newTestServer(t, cfg)
	token := seedUser(t, cfg, "editor", models.RoleEditor)

	resp := doJSON(t, srv, http.MethodPost, "/api/admin/uploads/presign", token, map[string]string{
		"filename": "photo.png",
	})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("missing contentType; expected 400, got %d", resp.Code)
	}
}

func TestReplaceContentAndPublicRead(t *testing.T) {
	cfg := testConfig(t)
	// Public base for resolving managed references.
	cfg.Uploads.S3.PublicURL = "https://media.club.example"
	srv := newTestServer(t, cfg)
	token := seedUser(t, cfg, "editor", models.RoleEditor)

	members := []map[string]interface{}{
		{
			"id":               "t1",
			"name":             "Alex",
			"position":         "President",
			"sort_order":       1,
			"image_url":        "ignored",
			"media_key":        "team-t1-123.jpg",
			"storage_provider": "r2",
		},
		{
			"id":         "t2",
			"name":       "Sam",
			"position":   "Treasurer",
			"sort_order": 2,
			"image_url":  "https://cdn.example.com/sam.jpg",
		},
	}

	resp := doJSON(t, srv, http.MethodPut, "/api/admin/content/team", token, members)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", resp.Code, resp.Body.String())
	}

	read := doJSON(t, srv, http.MethodGet, "/api/team", "", nil)
	if read.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", read.Code)
	}

	var got []struct {
		ID       string `json:"id"`
		ImageURL string `json:"image_url"`
	}
	if err := json.Unmarshal(read.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 members, got %d", len(got))
	}
	if got[0].ImageURL != "https://media.club.example/team-t1-123.jpg" {
		t.Errorf("managed reference not resolved: %s", got[0].ImageURL)
	}
	if got[1].ImageURL != "https://cdn.example.com/sam.jpg" {
		t.Errorf("external reference should pass through: %s", got[1].ImageURL)
	}
}

func TestReplaceContentUnknownType(t *testing.T) {
	cfg := testConfig(t)
	srv := newTestServer(t, cfg)
	token := seedUser(t, cfg, "editor", models.RoleEditor)

	resp := doJSON(t, srv, http.MethodPut, "/api/admin/content/widgets", token, []string{})
	if resp.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.Code)
	}
}

func TestReplaceContentInvalidJSON(t *testing.T) {
	cfg := testConfig(t)
	srv := newTestServer(t, cfg)
	token := seedUser(t, cfg, "editor", models.RoleEditor)

	req := httptest.NewRequest(http.MethodPut, "/api/admin/content/team", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	srv.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", recorder.Code)
	}
}

func teamTimestamps(t *testing.T, srv *Server) map[string]time.Time {
	t.Helper()
	read := doJSON(t, srv, http.MethodGet, "/api/team", "", nil)
	if read.Code != http.StatusOK {
		t.Fatalf("listing team: %d", read.Code)
	}
	var rows []struct {
		ID        string    `json:"id"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(read.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	stamps := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		stamps[row.ID] = row.UpdatedAt
	}
	return stamps
}

func TestMigrateMediaRequiresAdmin(t *testing.T) {
	cfg := testConfig(t)
	srv := newTestServer(t, cfg)
	token := seedUser(t, cfg, "editor", models.RoleEditor)

	resp := doJSON(t, srv, http.MethodPost, "/api/admin/migrate-media", token, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("editors cannot migrate; expected 403, got %d", resp.Code)
	}
}

func TestMigrateMediaEndToEnd(t *testing.T) {
	bucket := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer bucket.Close()

	cfg := s3TestConfig(t, bucket.URL)
	srv := newTestServer(t, cfg)
	adminToken := seedUser(t, cfg, "admin", models.RoleAdmin)
	editorToken := seedUser(t, cfg, "editor", models.RoleEditor)

	members := []map[string]interface{}{
		{"id": "t1", "name": "Alex", "position": "President", "image_url": "data:image/jpeg;base64,aGVsbG8="},
		{"id": "t2", "name": "Sam", "position": "Treasurer", "image_url": "https://cdn.example.com/sam.jpg"},
	}
	if resp := doJSON(t, srv, http.MethodPut, "/api/admin/content/team", editorToken, members); resp.Code != http.StatusNoContent {
		t.Fatalf("seeding content: %d: %s", resp.Code, resp.Body.String())
	}

	timestampsBefore := teamTimestamps(t, srv)

	resp := doJSON(t, srv, http.MethodPost, "/api/admin/migrate-media", adminToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var result struct {
		Message string         `json:"message"`
		Moved   map[string]int `json:"moved"`
		Total   int            `json:"total"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if result.Total != 1 || result.Moved["team"] != 1 {
		t.Fatalf("expected 1 team image moved, got %+v", result)
	}

	read := doJSON(t, srv, http.MethodGet, "/api/team", "", nil)
	var got []struct {
		ID       string `json:"id"`
		ImageURL string `json:"image_url"`
	}
	if err := json.Unmarshal(read.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	for _, member := range got {
		switch member.ID {
		case "t1":
			if !strings.HasPrefix(member.ImageURL, "https://media.club.example/team-t1-") ||
				!strings.HasSuffix(member.ImageURL, ".jpg") {
				t.Errorf("migrated image not rewritten to managed URL: %s", member.ImageURL)
			}
		case "t2":
			if member.ImageURL != "https://cdn.example.com/sam.jpg" {
				t.Errorf("external image should be untouched: %s", member.ImageURL)
			}
		}
	}

	// The migration must not disturb timestamps on rows it did not touch.
	timestampsAfter := teamTimestamps(t, srv)
	if !timestampsAfter["t2"].Equal(timestampsBefore["t2"]) {
		t.Errorf("untouched row's updated_at changed: %v != %v", timestampsAfter["t2"], timestampsBefore["t2"])
	}

	// A second run finds nothing inline.
	again := doJSON(t, srv, http.MethodPost, "/api/admin/migrate-media", adminToken, nil)
	var second struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(again.Body.Bytes(), &second); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if second.Total != 0 {
		t.Errorf("re-run should move nothing, moved %d", second.Total)
	}

	// The run summary is persisted for the last-run endpoint.
	lastRun := doJSON(t, srv, http.MethodGet, "/api/admin/migrate-media/last-run", adminToken, nil)
	if lastRun.Code != http.StatusOK {
		t.Errorf("expected persisted summary, got %d", lastRun.Code)
	}
}

func uploadMultipart(t *testing.T, srv *Server, token, filename, contentType string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("creating part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("writing part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/uploads", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	srv.ServeHTTP(recorder, req)
	return recorder
}

func TestLocalMediaLifecycle(t *testing.T) {
	cfg := testConfig(t)
	srv := newTestServer(t, cfg)
	token := seedUser(t, cfg, "editor", models.RoleEditor)

	payload := []byte{0x89, 'P', 'N', 'G'}
	resp := uploadMultipart(t, srv, token, "Club Photo.png", "image/png", payload)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var uploaded struct {
		Key string `json:"key"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &uploaded); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if uploaded.URL != "/media/"+uploaded.Key {
		t.Errorf("without a bucket public URL the object serves from /media, got %s", uploaded.URL)
	}

	served := doJSON(t, srv, http.MethodGet, "/media/"+uploaded.Key, "", nil)
	if served.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", served.Code)
	}
	if !bytes.Equal(served.Body.Bytes(), payload) {
		t.Errorf("served bytes differ from upload")
	}
	if served.Header().Get("Content-Type") != "image/png" {
		t.Errorf("unexpected content type: %s", served.Header().Get("Content-Type"))
	}

	// Managed references resolve under /media for the local method.
	members := []map[string]interface{}{
		{"id": "t1", "name": "Alex", "position": "President", "image_url": "ignored", "media_key": uploaded.Key, "storage_provider": "r2"},
	}
	if put := doJSON(t, srv, http.MethodPut, "/api/admin/content/team", token, members); put.Code != http.StatusNoContent {
		t.Fatalf("seeding content: %d", put.Code)
	}
	read := doJSON(t, srv, http.MethodGet, "/api/team", "", nil)
	var got []struct {
		ImageURL string `json:"image_url"`
	}
	if err := json.Unmarshal(read.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got[0].ImageURL != "/media/"+uploaded.Key {
		t.Errorf("managed key not resolved to /media: %s", got[0].ImageURL)
	}

	deleted := doJSON(t, srv, http.MethodDelete, "/api/admin/media/"+uploaded.Key, token, nil)
	if deleted.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", deleted.Code)
	}
	gone := doJSON(t, srv, http.MethodGet, "/media/"+uploaded.Key, "", nil)
	if gone.Code != http.StatusNotFound {
		t.Errorf("deleted object should 404, got %d", gone.Code)
	}
}

func TestDirectUploadRequiresAuth(t *testing.T) {
	srv := newTestServer(t, testConfig(t))
	resp := uploadMultipart(t, srv, "", "photo.png", "image/png", []byte("x"))
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.Code)
	}
}

func TestServeMediaRejectsTraversal(t *testing.T) {
	srv := newTestServer(t, testConfig(t))
	resp := doJSON(t, srv, http.MethodGet, "/media/../test.db", "", nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("traversal key should 404, got %d", resp.Code)
	}
}

func TestReplaceContentBumpsUpdatedAt(t *testing.T) {
	cfg := testConfig(t)
	srv := newTestServer(t, cfg)
	token := seedUser(t, cfg, "editor", models.RoleEditor)

	members := []map[string]interface{}{
		{"id": "t1", "name": "Alex", "position": "President", "updated_at": "2020-01-01T00:00:00Z"},
	}
	if resp := doJSON(t, srv, http.MethodPut, "/api/admin/content/team", token, members); resp.Code != http.StatusNoContent {
		t.Fatalf("put: %d", resp.Code)
	}

	read := doJSON(t, srv, http.MethodGet, "/api/team", "", nil)
	var got []struct {
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(read.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got[0].UpdatedAt.Year() == 2020 {
		t.Error("an admin save should bump updated_at")
	}
}

func TestImageProxyCachesUpstream(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer upstream.Close()

	srv := newTestServer(t, testConfig(t))
	target := fmt.Sprintf("/img?url=%s", upstream.URL+"/logo.png")

	first := doJSON(t, srv, http.MethodGet, target, "", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	if first.Header().Get("Cache-Control") != "public, max-age=86400" {
		t.Errorf("unexpected cache header: %s", first.Header().Get("Cache-Control"))
	}
	if first.Header().Get("Content-Type") != "image/png" {
		t.Errorf("unexpected content type: %s", first.Header().Get("Content-Type"))
	}

	second := doJSON(t, srv, http.MethodGet, target, "", nil)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", second.Code)
	}
	if hits.Load() != 1 {
		t.Errorf("second request should be served from cache, upstream hits %d", hits.Load())
	}
}

func TestImageProxyValidatesURL(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	if resp := doJSON(t, srv, http.MethodGet, "/img", "", nil); resp.Code != http.StatusBadRequest {
		t.Errorf("missing url; expected 400, got %d", resp.Code)
	}
	if resp := doJSON(t, srv, http.MethodGet, "/img?url=ftp://example.com/a.png", "", nil); resp.Code != http.StatusBadRequest {
		t.Errorf("non-http scheme; expected 400, got %d", resp.Code)
	}
}

func TestAuthMiddlewareIgnoresDisabledUser(t *testing.T) {
	cfg := testConfig(t)
	srv := newTestServer(t, cfg)
	token := seedUser(t, cfg, "alex", models.RoleAdmin)

	conn, err := sql.Open("sqlite", cfg.Database.Path)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Exec("UPDATE users SET disabled_at = CURRENT_TIMESTAMP WHERE username = 'alex'"); err != nil {
		t.Fatalf("disabling user: %v", err)
	}

	resp := doJSON(t, srv, http.MethodPost, "/api/admin/migrate-media", token, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("disabled user's token should not authenticate, got %d", resp.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, testConfig(t))
	resp := doJSON(t, srv, http.MethodGet, "/api/ping", "", nil)
	if resp.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options header")
	}
	if resp.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options header")
	}
}
