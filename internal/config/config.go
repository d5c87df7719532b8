// Package config resolves run settings from the environment and an optional
// .env file. Values in the process environment win over the .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/eniac111/ansimple/internal/types"
)

// EnvFileName is looked up in the directory passed to Load.
const EnvFileName = ".env"

const (
	DefaultInventory      = "/etc/ansible/hosts"
	DefaultPlaybook       = "./playbook.yaml"
	DefaultForks          = 1
	DefaultTimeout        = 10 * time.Second
	DefaultCommandTimeout = 10 * time.Minute
	DefaultConnection     = "ssh"
	DefaultLogLevel       = "warn"
	DefaultLogFormat      = "text"
)

// ErrInvalidConfig marks a setting that could not be parsed or is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Settings holds everything a run can be configured with.
type Settings struct {
	Identity        string
	Inventory       string
	Playbook        string
	Forks           int
	Timeout         time.Duration
	CommandTimeout  time.Duration
	Retries         int
	PrivateKey      string
	KnownHosts      string
	HostKeyChecking bool
	Connection      string
	LogLevel        string
	LogFormat       string
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		Inventory:       DefaultInventory,
		Playbook:        DefaultPlaybook,
		Forks:           DefaultForks,
		Timeout:         DefaultTimeout,
		CommandTimeout:  DefaultCommandTimeout,
		HostKeyChecking: true,
		Connection:      DefaultConnection,
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
	}
}

// ReadEnvFile parses dir/.env. A missing file yields an empty map.
func ReadEnvFile(dir string) (map[string]string, error) {
	path := filepath.Join(dir, EnvFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	m, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrInvalidConfig, path, err)
	}
	return m, nil
}

// Load builds Settings from defaults, dir/.env and the process environment.
func Load(dir string) (Settings, error) {
	envMap, err := ReadEnvFile(dir)
	if err != nil {
		return Settings{}, err
	}
	return FromLookup(func(key string) string {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
		return envMap[key]
	})
}

// FromLookup builds Settings from defaults overlaid with the values lookup
// returns. Empty values leave the default in place.
func FromLookup(lookup func(string) string) (Settings, error) {
	s := Defaults()
	var errs []error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(lookup(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v := strings.TrimSpace(lookup(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a number", key, v))
			return
		}
		*dst = n
	}
	dur := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(lookup(key))
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a duration", key, v))
			return
		}
		*dst = d
	}
	flag := func(key string, dst *bool) {
		v := strings.TrimSpace(lookup(key))
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a boolean", key, v))
			return
		}
		*dst = b
	}

	str("USER", &s.Identity)
	str("ANSIMPLE_INVENTORY", &s.Inventory)
	str("ANSIMPLE_PLAYBOOK", &s.Playbook)
	num("ANSIMPLE_FORKS", &s.Forks)
	dur("ANSIMPLE_TIMEOUT", &s.Timeout)
	dur("ANSIMPLE_COMMAND_TIMEOUT", &s.CommandTimeout)
	num("ANSIMPLE_RETRIES", &s.Retries)
	str("ANSIMPLE_PRIVATE_KEY", &s.PrivateKey)
	str("ANSIMPLE_KNOWN_HOSTS", &s.KnownHosts)
	flag("ANSIMPLE_HOST_KEY_CHECKING", &s.HostKeyChecking)
	str("ANSIMPLE_CONNECTION", &s.Connection)
	str("ANSIMPLE_LOG_LEVEL", &s.LogLevel)
	str("ANSIMPLE_LOG_FORMAT", &s.LogFormat)

	if len(errs) > 0 {
		return s, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return s, nil
}

// Validate checks ranges and enumerations.
func (s Settings) Validate() error {
	var problems []string
	if s.Forks < 1 {
		problems = append(problems, fmt.Sprintf("forks must be at least 1, got %d", s.Forks))
	}
	if s.Timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if s.CommandTimeout <= 0 {
		problems = append(problems, "command timeout must be positive")
	}
	if s.Retries < 0 {
		problems = append(problems, "retries cannot be negative")
	}
	if s.Connection != "ssh" && s.Connection != "local" {
		problems = append(problems, fmt.Sprintf("unsupported connection %q", s.Connection))
	}
	if s.Inventory == "" {
		problems = append(problems, "inventory path cannot be empty")
	}
	if s.Playbook == "" {
		problems = append(problems, "playbook path cannot be empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ResolveIdentity returns the remote login name: the explicit value if given,
// otherwise the one from settings.
func ResolveIdentity(explicit string, s Settings) (string, error) {
	if id := strings.TrimSpace(explicit); id != "" {
		return id, nil
	}
	if s.Identity != "" {
		return s.Identity, nil
	}
	return "", types.ErrMissingIdentity
}
