package cache

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Backend identifies the kind of persisted tier a location selects
type Backend string

// Supported persisted tier backends
const (
	BackendNone     Backend = "none"
	BackendFile     Backend = "file"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
)

// Config holds cache configuration
type Config struct {
	// Enabled turns the whole store on or off. A disabled store never hits
	// and never writes.
	Enabled bool

	// TTL is how long an entry stays fresh after it was written
	TTL time.Duration

	// Location selects the persisted tier:
	//   ""                          in-process tier only
	//   /some/dir or file:///dir    one file per entry under dir
	//   redis://host:6379/0         Redis, keys under KeyPrefix
	//   postgres://user@host/db     PostgreSQL table
	Location string

	// KeyPrefix namespaces Redis keys. Default: "userinfo:cache:"
	KeyPrefix string
}

// DefaultLocation returns the directory used when no location is configured
func DefaultLocation() string {
	return filepath.Join(os.TempDir(), "minecraft_api_cache")
}

// DefaultConfig returns an enabled config with a 30 second TTL backed by
// the default directory.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		TTL:       30 * time.Second,
		Location:  DefaultLocation(),
		KeyPrefix: "userinfo:cache:",
	}
}

// Validate checks the config for invalid values
func (c Config) Validate() error {
	if c.TTL < 0 {
		return fmt.Errorf("cache TTL must not be negative, got %s", c.TTL)
	}
	if _, _, err := ParseLocation(c.Location); err != nil {
		return err
	}
	return nil
}

// ParseLocation resolves a location string into a backend and the address
// that backend should open.
func ParseLocation(location string) (Backend, string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return BackendNone, "", nil
	}

	if !strings.Contains(location, "://") {
		return BackendFile, filepath.Clean(location), nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("invalid cache location: %w", err)
	}

	switch u.Scheme {
	case "file":
		if u.Path == "" {
			return "", "", fmt.Errorf("invalid cache location %q: missing path", location)
		}
		return BackendFile, filepath.Clean(u.Path), nil
	case "redis", "rediss":
		return BackendRedis, location, nil
	case "postgres", "postgresql":
		return BackendPostgres, location, nil
	default:
		return "", "", fmt.Errorf("unsupported cache location scheme %q", u.Scheme)
	}
}
