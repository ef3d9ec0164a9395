//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/connectify/apiserver/config"
	"github.com/connectify/apiserver/internal/db"
	"github.com/connectify/apiserver/internal/server"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const (
	serverPort = 18080
)

var baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	setTestEnv()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestFriendshipLifecycle(t *testing.T) {
	alice := newClient(t)
	bob := newClient(t)

	aliceID := alice.signup(t, "Alice")
	bobID := bob.signup(t, "Bob")
	alice.onboard(t)
	bob.onboard(t)

	recommended := alice.recommended(t)
	if !containsUser(recommended, bobID) {
		t.Fatalf("expected bob in alice's recommendations")
	}

	requestID := alice.sendRequest(t, bobID, http.StatusOK)
	alice.sendRequest(t, bobID, http.StatusBadRequest)
	bob.sendRequest(t, aliceID, http.StatusBadRequest)

	alice.expectStatus(t, http.MethodPut, "/users/friend-request/"+requestID+"/accept", http.StatusForbidden)
	bob.expectStatus(t, http.MethodPut, "/users/friend-request/"+requestID+"/accept", http.StatusOK)
	bob.expectStatus(t, http.MethodPut, "/users/friend-request/"+requestID+"/accept", http.StatusOK)

	if !containsUser(alice.listUsers(t, "/users/friends"), bobID) {
		t.Fatalf("expected bob in alice's friends")
	}
	if !containsUser(bob.listUsers(t, "/users/friends"), aliceID) {
		t.Fatalf("expected alice in bob's friends")
	}
	if containsUser(alice.recommended(t), bobID) {
		t.Fatalf("friends must not be recommended")
	}

	alice.expectStatus(t, http.MethodDelete, "/users/unfriend/"+bobID, http.StatusOK)
	alice.expectStatus(t, http.MethodDelete, "/users/unfriend/"+bobID, http.StatusOK)
	if containsUser(bob.listUsers(t, "/users/friends"), aliceID) {
		t.Fatalf("expected alice removed from bob's friends")
	}

	alice.sendRequest(t, bobID, http.StatusOK)
}

func TestRejectAllowsResend(t *testing.T) {
	carol := newClient(t)
	dave := newClient(t)

	carol.signup(t, "Carol")
	daveID := dave.signup(t, "Dave")

	requestID := carol.sendRequest(t, daveID, http.StatusOK)
	dave.expectStatus(t, http.MethodPut, "/users/friend-request/"+requestID+"/reject", http.StatusOK)
	dave.expectStatus(t, http.MethodPut, "/users/friend-request/"+requestID+"/reject", http.StatusNotFound)
	carol.sendRequest(t, daveID, http.StatusOK)
}

func TestSignupOtpVerification(t *testing.T) {
	erin := newClient(t)
	erin.signup(t, "Erin")

	erin.postJSON(t, "/auth/send-otp", map[string]string{"email": erin.email}, http.StatusOK)
	first, err := storedOTP(erin.email)
	if err != nil {
		t.Fatalf("read otp: %v", err)
	}

	erin.postJSON(t, "/auth/send-otp", map[string]string{"email": erin.email}, http.StatusOK)
	second, err := storedOTP(erin.email)
	if err != nil {
		t.Fatalf("read otp: %v", err)
	}

	if first != second {
		erin.postJSON(t, "/auth/verify-otp", map[string]string{"email": erin.email, "otp": first}, http.StatusBadRequest)
	}
	erin.postJSON(t, "/auth/verify-otp", map[string]string{"email": erin.email, "otp": second}, http.StatusOK)
	erin.postJSON(t, "/auth/verify-otp", map[string]string{"email": erin.email, "otp": second}, http.StatusBadRequest)
	erin.postJSON(t, "/auth/send-otp", map[string]string{"email": erin.email}, http.StatusBadRequest)
}

type client struct {
	http     *http.Client
	email    string
	password string
}

func newClient(t *testing.T) *client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &client{
		http:     &http.Client{Jar: jar, Timeout: 10 * time.Second},
		email:    fmt.Sprintf("user_%d@example.com", time.Now().UnixNano()),
		password: "testpass123!",
	}
}

type userEnvelope struct {
	User struct {
		ID string `json:"_id"`
	} `json:"user"`
}

type requestEnvelope struct {
	Request struct {
		ID string `json:"_id"`
	} `json:"request"`
}

type userSummary struct {
	ID string `json:"_id"`
}

func (c *client) signup(t *testing.T, name string) string {
	t.Helper()

	body := c.postJSON(t, "/auth/signup", map[string]string{
		"email":    c.email,
		"password": c.password,
		"fullName": name,
	}, http.StatusCreated)

	var parsed userEnvelope
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("decode signup: %v", err)
	}
	if parsed.User.ID == "" {
		t.Fatalf("missing user id in signup response")
	}
	return parsed.User.ID
}

func (c *client) onboard(t *testing.T) {
	t.Helper()

	c.postJSON(t, "/auth/onboarding", map[string]string{
		"fullName":       "Onboarded " + c.email,
		"bio":            "Learning languages",
		"nativeLanguage": "english",
		"location":       "Lisbon",
	}, http.StatusOK)
}

func (c *client) sendRequest(t *testing.T, recipientID string, want int) string {
	t.Helper()

	body := c.do(t, http.MethodPost, "/users/friend-request/"+recipientID, nil, want)
	if want != http.StatusOK {
		return ""
	}
	var parsed requestEnvelope
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("decode friend request: %v", err)
	}
	return parsed.Request.ID
}

func (c *client) listUsers(t *testing.T, path string) []userSummary {
	t.Helper()

	body := c.do(t, http.MethodGet, path, nil, http.StatusOK)
	var users []userSummary
	if err := json.Unmarshal(body, &users); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return users
}

func (c *client) recommended(t *testing.T) []userSummary {
	t.Helper()

	body := c.do(t, http.MethodGet, "/users/connect", nil, http.StatusOK)
	var resp struct {
		Success          bool          `json:"success"`
		RecommendedUsers []userSummary `json:"recommendedUsers"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode /users/connect: %v", err)
	}
	if !resp.Success {
		t.Fatalf("/users/connect: success=false")
	}
	return resp.RecommendedUsers
}

func (c *client) expectStatus(t *testing.T, method, path string, want int) {
	t.Helper()
	c.do(t, method, path, nil, want)
}

func (c *client) postJSON(t *testing.T, path string, payload any, want int) []byte {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return c.do(t, http.MethodPost, path, data, want)
}

func (c *client) do(t *testing.T, method, path string, payload []byte, want int) []byte {
	t.Helper()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	msg, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, want, strings.TrimSpace(string(msg)))
	}
	return msg
}

func containsUser(users []userSummary, id string) bool {
	for _, u := range users {
		if u.ID == id {
			return true
		}
	}
	return false
}

func storedOTP(email string) (string, error) {
	conn, err := sql.Open("postgres", db.PostgresURL(config.LoadConfig().Database))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var otp sql.NullString
	if err := conn.QueryRowContext(ctx, "SELECT otp FROM users WHERE email = $1", email).Scan(&otp); err != nil {
		return "", err
	}
	if !otp.Valid {
		return "", fmt.Errorf("no otp stored for %s", email)
	}
	return otp.String, nil
}

func setTestEnv() {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("STORE_DRIVER", "postgres")
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "connectify")
	_ = os.Setenv("DB_PASSWORD", "connectify")
	_ = os.Setenv("DB_NAME", "connectify")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("MAIL_BACKEND", "log")
	_ = os.Setenv("DIRECTORY_SYNC_MODE", "none")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "connectify")
	_ = os.Setenv("OTP_RATE_PER_MINUTE", "600")
	_ = os.Setenv("OTP_RATE_BURST", "100")
	_ = os.Setenv("LOG_LEVEL", "warn")
}

func waitForPostgres(ctx context.Context) error {
	conn, err := sql.Open("postgres", db.PostgresURL(config.LoadConfig().Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	migrationsURL := "file://" + filepath.Join(root, "internal", "db", "migrations")

	migrator, err := migrate.New(migrationsURL, db.PostgresURL(config.LoadConfig().Database))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func startServer(ctx context.Context) (*server.Server, error) {
	srv, err := server.New(ctx, config.LoadConfig())
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
