package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// writeConfig writes yamlContent to a temp config.yaml and returns its path.
func writeConfig(t *testing.T, yamlContent string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// clearEnv unsets variables a developer machine may export so tests see
// only what they set.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "BASE_URL", "ENVIRONMENT", "PGHOST", "DATABASE_URL", "TLS_CERT_PATH", "TLS_KEY_PATH",
		"JWKS_ENDPOINTS", "JWT_SECRET", "DEFAULT_PROJECT_ID", "REST_EXPOSED_SCHEMAS", "REST_PROTECTED_TABLES",
		"REST_MAX_ROWS", "REST_TRANSACTIONAL_WRITES", "AUTH_ENABLE_VERIFICATION", "DB_EXECUTOR", "LOG_LEVEL",
		"REST_REJECT_SUSPICIOUS_VALUES", "REST_AUDIT_WRITES",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("JWT_SECRET", "test-secret-with-at-least-32-characters")
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	configPath := writeConfig(t, `
port: "3000"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
`)

	// Set env vars to override YAML values
	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load(configPath, "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Verify env vars override YAML
	if cfg.Port != "4443" {
		t.Errorf("expected Port=4443 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}

	// Verify version was set
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}

	// Verify BaseURL was auto-derived from PORT
	if cfg.BaseURL != "http://localhost:4443" {
		t.Errorf("expected BaseURL=http://localhost:4443 (auto-derived from PORT), got %s", cfg.BaseURL)
	}

	// Verify YAML value used for database host (proves YAML was read)
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Database.Host)
	}
}

func TestLoad_BaseURLExplicit(t *testing.T) {
	clearEnv(t)
	configPath := writeConfig(t, `
base_url: "http://my-server.internal:8080"
`)

	cfg, err := Load(configPath, "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.BaseURL != "http://my-server.internal:8080" {
		t.Errorf("expected BaseURL=http://my-server.internal:8080 (explicit), got %s", cfg.BaseURL)
	}
}

func TestLoad_MissingConfigFileUsesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("REST_PROTECTED_TABLES", "profiles, posts:author_id")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "7000" {
		t.Errorf("expected Port=7000, got %s", cfg.Port)
	}
	if len(cfg.REST.ProtectedTables) != 2 || cfg.REST.ProtectedTables[1] != "posts:author_id" {
		t.Errorf("unexpected protected tables %v", cfg.REST.ProtectedTables)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	configPath := writeConfig(t, `env: "test"`)

	cfg, err := Load(configPath, "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.REST.DefaultSchema != "public" {
		t.Errorf("expected default schema public, got %q", cfg.REST.DefaultSchema)
	}
	if !cfg.REST.TransactionalWrites {
		t.Error("expected transactional writes to default to true")
	}
	if cfg.REST.MaxRows != 0 {
		t.Errorf("expected no row cap by default, got %d", cfg.REST.MaxRows)
	}
	if !cfg.Auth.AllowAnonymous {
		t.Error("expected anonymous access to default to true")
	}
	if cfg.Database.AnonRole != "anon" || cfg.Database.AuthenticatedRole != "authenticated" || cfg.Database.ServiceRole != "service_role" {
		t.Errorf("unexpected default roles: %+v", cfg.Database)
	}
	if !cfg.Database.SwitchRoles {
		t.Error("expected role switching to default to true")
	}
	if cfg.Database.Executor != ExecutorPool {
		t.Errorf("expected pool executor by default, got %q", cfg.Database.Executor)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log level info, got %q", cfg.LogLevel)
	}
}

func TestLoad_RESTConfigFromYAML(t *testing.T) {
	clearEnv(t)
	configPath := writeConfig(t, `
rest:
  default_schema: "api"
  exposed_schemas: ["reporting", " audit "]
  protected_tables: ["profiles"]
  transactional_writes: false
  max_rows: 500
  reject_suspicious_values: true
  audit_writes: true
`)

	cfg, err := Load(configPath, "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	rest := cfg.REST
	if rest.DefaultSchema != "api" {
		t.Errorf("expected default schema api, got %q", rest.DefaultSchema)
	}
	if strings.Join(rest.ExposedSchemas, ",") != "reporting,audit" {
		t.Errorf("expected trimmed exposed schemas, got %v", rest.ExposedSchemas)
	}
	if rest.TransactionalWrites {
		t.Error("expected transactional writes to be disabled")
	}
	if rest.MaxRows != 500 {
		t.Errorf("expected max rows 500, got %d", rest.MaxRows)
	}
	if !rest.RejectSuspiciousValues {
		t.Error("expected suspicious values to be rejected")
	}
	if !rest.AuditWrites {
		t.Error("expected write auditing to be enabled")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
		want string
	}{
		{name: "negative max rows", yaml: "rest:\n  max_rows: -1\n", want: "max_rows"},
		{name: "unknown executor", yaml: "database:\n  executor: \"odbc\"\n", want: "database.executor"},
		{name: "bad project id", yaml: "auth:\n  default_project_id: \"nope\"\n", want: "default_project_id"},
		{
			name: "verification without keys",
			yaml: "auth:\n  enable_verification: true\n",
			env:  map[string]string{"JWT_SECRET": ""},
			want: "neither JWT_SECRET nor jwks_endpoints",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(writeConfig(t, tt.yaml), "test-version")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_AuthConfig(t *testing.T) {
	clearEnv(t)
	projectID := uuid.New()
	configPath := writeConfig(t, fmt.Sprintf(`
auth:
  jwks_endpoints: "https://auth.example.com=https://auth.example.com/.well-known/jwks.json"
  audience: "rest"
  allow_anonymous: false
  default_project_id: "%s"
`, projectID))

	cfg, err := Load(configPath, "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if got := cfg.Auth.JWKSEndpoints["https://auth.example.com"]; got != "https://auth.example.com/.well-known/jwks.json" {
		t.Errorf("unexpected JWKS endpoint %q", got)
	}
	if cfg.Auth.JWTSecret == "" {
		t.Error("expected JWT secret from environment")
	}
	if cfg.Auth.AllowAnonymous {
		t.Error("expected anonymous access to be disabled")
	}
	if cfg.Auth.ProjectID() != projectID {
		t.Errorf("expected project %s, got %s", projectID, cfg.Auth.ProjectID())
	}
}

func TestLoad_NoTLS(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, `env: "test"`), "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.TLSCertPath != "" || cfg.TLSKeyPath != "" {
		t.Errorf("expected empty TLS paths, got %q %q", cfg.TLSCertPath, cfg.TLSKeyPath)
	}
}

func TestValidateTLS(t *testing.T) {
	tmpDir := t.TempDir()
	certPath := filepath.Join(tmpDir, "test-cert.pem")
	keyPath := filepath.Join(tmpDir, "test-key.pem")
	if err := os.WriteFile(certPath, []byte("fake-cert-content"), 0644); err != nil {
		t.Fatalf("failed to write test cert: %v", err)
	}
	if err := os.WriteFile(keyPath, []byte("fake-key-content"), 0644); err != nil {
		t.Fatalf("failed to write test key: %v", err)
	}
	missing := filepath.Join(tmpDir, "missing.pem")

	tests := []struct {
		name    string
		cert    string
		key     string
		wantErr string
	}{
		{name: "both provided", cert: certPath, key: keyPath},
		{name: "only cert", cert: certPath, wantErr: "must be provided together"},
		{name: "only key", key: keyPath, wantErr: "must be provided together"},
		{name: "cert missing", cert: missing, key: keyPath, wantErr: "cert file does not exist"},
		{name: "key missing", cert: certPath, key: missing, wantErr: "key file does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{TLSCertPath: tt.cert, TLSKeyPath: tt.key}
			err := cfg.validateTLS()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_TLSFromEnvDerivesHTTPS(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	certPath := filepath.Join(tmpDir, "cert.pem")
	keyPath := filepath.Join(tmpDir, "key.pem")
	_ = os.WriteFile(certPath, []byte("cert"), 0644)
	_ = os.WriteFile(keyPath, []byte("key"), 0644)

	t.Setenv("TLS_CERT_PATH", certPath)
	t.Setenv("TLS_KEY_PATH", keyPath)
	t.Setenv("PORT", "8443")

	cfg, err := Load(writeConfig(t, `env: "test"`), "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.BaseURL != "https://localhost:8443" {
		t.Errorf("expected https BaseURL, got %s", cfg.BaseURL)
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	t.Run("url wins", func(t *testing.T) {
		c := &DatabaseConfig{URL: "postgres://u:p@db:5432/x", Host: "ignored"}
		if got := c.ConnectionString(); got != "postgres://u:p@db:5432/x" {
			t.Errorf("unexpected connection string %q", got)
		}
	})

	t.Run("key value dsn", func(t *testing.T) {
		c := &DatabaseConfig{Host: "db.example.com", Port: 5432, User: "rest", Password: "it's secret", Database: "app", SSLMode: "require"}
		want := `host=db.example.com port=5432 user=rest password='it\'s secret' dbname=app sslmode=require`
		if got := c.ConnectionString(); got != want {
			t.Errorf("ConnectionString() = %q, want %q", got, want)
		}
	})
}

func TestResolveHostForDocker(t *testing.T) {
	for _, host := range []string{"mydb.example.com", "192.168.1.100", "host.docker.internal"} {
		if got := ResolveHostForDocker(host); got != host {
			t.Errorf("ResolveHostForDocker(%q) = %q, want unchanged", host, got)
		}
	}

	for _, host := range []string{"localhost", "127.0.0.1"} {
		want := host
		if IsRunningInDocker() {
			want = "host.docker.internal"
		}
		if got := ResolveHostForDocker(host); got != want {
			t.Errorf("ResolveHostForDocker(%q) = %q, want %q", host, got, want)
		}
	}
}
