package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// Statement executors.
const (
	ExecutorPool = "pool"
	ExecutorSQL  = "sql"
)

// Config is the ekaya-rest configuration. Values are read from config.yaml
// and then from the environment, which wins. Fields tagged yaml:"-" are
// secrets and can only be set through the environment.
type Config struct {
	// HTTP listener
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // derived from Port when empty
	Version  string `yaml:"-"`                                      // injected by Load
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// Serve HTTPS when both are set.
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	REST     RESTConfig     `yaml:"rest"`
}

// AuthConfig controls how bearer tokens become sessions.
type AuthConfig struct {
	// EnableVerification checks token signatures and expiry. Disable only
	// for local development.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr lists issuer=jwks_url pairs separated by commas.
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is JWKSEndpointsStr keyed by issuer.
	JWKSEndpoints map[string]string `yaml:"-"`

	// JWTSecret verifies HS256 tokens.
	JWTSecret string `yaml:"-" env:"JWT_SECRET"`

	// Audience, when set, must appear in every token's aud claim.
	Audience string `yaml:"audience" env:"JWT_AUDIENCE" env-default:""`

	// AllowAnonymous lets requests without a token run as the anon role.
	AllowAnonymous bool `yaml:"allow_anonymous" env:"AUTH_ALLOW_ANONYMOUS" env-default:"true"`

	// DefaultProjectID is used for sessions whose token carries no pid claim.
	DefaultProjectID string `yaml:"default_project_id" env:"DEFAULT_PROJECT_ID" env-default:""`
}

// DatabaseConfig locates the PostgreSQL database and names the roles
// requests run as.
type DatabaseConfig struct {
	// URL overrides the discrete connection fields below. It may embed a password.
	URL      string `yaml:"-" env:"DATABASE_URL"`
	Host     string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User     string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password string `yaml:"-" env:"PGPASSWORD"`
	Database string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_rest"`
	SSLMode  string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`

	MaxConnections int32 `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MinConnections int32 `yaml:"min_connections" env:"PGMIN_CONNECTIONS" env-default:"0"`

	// Database roles the executor switches to per request.
	AnonRole          string `yaml:"anon_role" env:"DB_ANON_ROLE" env-default:"anon"`
	AuthenticatedRole string `yaml:"authenticated_role" env:"DB_AUTHENTICATED_ROLE" env-default:"authenticated"`
	ServiceRole       string `yaml:"service_role" env:"DB_SERVICE_ROLE" env-default:"service_role"`
	// SwitchRoles disables SET ROLE when false (login role keeps its grants).
	SwitchRoles bool `yaml:"switch_roles" env:"DB_SWITCH_ROLES" env-default:"true"`

	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// Executor selects the statement executor: "pool" (pgx) or "sql"
	// (database/sql over the same pool).
	Executor string `yaml:"executor" env:"DB_EXECUTOR" env-default:"pool"`
}

// RESTConfig controls how REST requests are compiled and executed.
type RESTConfig struct {
	DefaultSchema string `yaml:"default_schema" env:"REST_DEFAULT_SCHEMA" env-default:"public"`

	// ExposedSchemas are the extra schemas Accept-Profile/Content-Profile may select.
	ExposedSchemas []string `yaml:"exposed_schemas" env:"REST_EXPOSED_SCHEMAS" env-separator:","`

	// ProtectedTables are "table" or "table:owner_column" entries whose
	// writes are restricted to the owning user.
	ProtectedTables []string `yaml:"protected_tables" env:"REST_PROTECTED_TABLES" env-separator:","`

	// TransactionalWrites runs the ownership check and the write in one transaction.
	TransactionalWrites bool `yaml:"transactional_writes" env:"REST_TRANSACTIONAL_WRITES" env-default:"true"`

	// MaxRows caps rows per read. 0 disables the cap.
	MaxRows int `yaml:"max_rows" env:"REST_MAX_ROWS" env-default:"0"`

	// RejectSuspiciousValues rejects filter values libinjection flags
	// instead of only logging them.
	RejectSuspiciousValues bool `yaml:"reject_suspicious_values" env:"REST_REJECT_SUSPICIOUS_VALUES" env-default:"false"`

	// AuditWrites logs a security audit event for every completed write.
	AuditWrites bool `yaml:"audit_writes" env:"REST_AUDIT_WRITES" env-default:"false"`
}

// Load reads configuration from path with environment variable overrides.
// A missing file is not an error: every setting then comes from the
// environment and defaults. The version parameter is injected at build time
// and set on the returned Config.
func Load(path, version string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.normalize()

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}
	if err := cfg.Auth.validate(); err != nil {
		return nil, fmt.Errorf("invalid auth configuration: %w", err)
	}
	if err := cfg.validateREST(); err != nil {
		return nil, err
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = cfg.deriveBaseURL()
	}
	return cfg, nil
}

// normalize fills the derived fields and trims list entries.
func (c *Config) normalize() {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	c.REST.ExposedSchemas = trimAll(c.REST.ExposedSchemas)
	c.REST.ProtectedTables = trimAll(c.REST.ProtectedTables)
}

func (c *Config) validateREST() error {
	if c.Database.Executor != ExecutorPool && c.Database.Executor != ExecutorSQL {
		return fmt.Errorf("database.executor must be %q or %q, got %q", ExecutorPool, ExecutorSQL, c.Database.Executor)
	}
	if c.REST.MaxRows < 0 {
		return fmt.Errorf("rest.max_rows must not be negative, got %d", c.REST.MaxRows)
	}
	return nil
}

// deriveBaseURL points at the local listener, over https when TLS is on.
func (c *Config) deriveBaseURL() string {
	u := url.URL{Scheme: "http", Host: "localhost:" + c.Port}
	if c.TLSCertPath != "" {
		u.Scheme = "https"
	}
	return u.String()
}

// validateTLS requires the cert and key paths together and checks both
// files exist. Their contents are only parsed when the listener starts.
func (c *Config) validateTLS() error {
	if (c.TLSCertPath == "") != (c.TLSKeyPath == "") {
		return errors.New("tls_cert_path and tls_key_path must be provided together")
	}
	if c.TLSCertPath == "" {
		return nil
	}
	if _, err := os.Stat(c.TLSCertPath); err != nil {
		return fmt.Errorf("TLS cert file does not exist: %w", err)
	}
	if _, err := os.Stat(c.TLSKeyPath); err != nil {
		return fmt.Errorf("TLS key file does not exist: %w", err)
	}
	return nil
}

func (a *AuthConfig) validate() error {
	if a.DefaultProjectID != "" {
		if _, err := uuid.Parse(a.DefaultProjectID); err != nil {
			return fmt.Errorf("default_project_id is not a UUID: %w", err)
		}
	}
	if a.EnableVerification && a.JWTSecret == "" && len(a.JWKSEndpoints) == 0 {
		return fmt.Errorf("verification is enabled but neither JWT_SECRET nor jwks_endpoints is set")
	}
	return nil
}

// ProjectID returns the parsed default project id, or uuid.Nil.
func (a *AuthConfig) ProjectID() uuid.UUID {
	id, err := uuid.Parse(a.DefaultProjectID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// parseJWKSEndpoints reads "issuer1=url1,issuer2=url2". Entries without
// an '=' are skipped.
func parseJWKSEndpoints(value string) map[string]string {
	byIssuer := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		byIssuer[strings.TrimSpace(issuer)] = strings.TrimSpace(jwksURL)
	}
	return byIssuer
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ConnectionString returns a PostgreSQL connection string. URL wins when
// set; otherwise a key/value DSN is built from the individual fields.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ResolveHostForDocker(c.Host), c.Port, c.User, quoteDSNValue(c.Password), c.Database, c.SSLMode,
	)
}

// quoteDSNValue quotes a key/value DSN value when it contains characters the
// DSN syntax treats specially.
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// IsRunningInDocker reports whether /.dockerenv exists. Checked once.
var IsRunningInDocker = sync.OnceValue(func() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
})

// ResolveHostForDocker maps a loopback host to host.docker.internal inside
// a container so a database on the host machine stays reachable.
func ResolveHostForDocker(host string) string {
	switch {
	case !IsRunningInDocker():
		return host
	case host == "localhost", host == "127.0.0.1":
		return "host.docker.internal"
	default:
		return host
	}
}
