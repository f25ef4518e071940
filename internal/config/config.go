// Package config resolves qastatus settings from flags, environment, an
// optional .env file and an optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/qaflow/qastatus/internal/github"
	"github.com/qaflow/qastatus/internal/graphql"
)

// DefaultBranch is the base branch scanned when neither INPUT_BRANCH nor
// GITHUB_REF name one.
const DefaultBranch = "dev"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved, immutable run configuration.
type Config struct {
	Owner      string
	OwnerType  github.OwnerType
	Repository string // owner/name
	RepoOwner  string
	RepoName   string
	ServerURL  string
	Endpoint   string
	Enterprise bool
	Token      string
	DryRun     bool
	Branch     string
	Throttle   time.Duration
	LogFormat  string
	Project    ProjectConfig
	ConfigFile string // file the values were read from, if any
	EnvFile    string // .env file merged into the environment, if any
}

// ProjectConfig identifies the board and its status field.
type ProjectConfig struct {
	Number      int
	Title       string
	StatusField string
	ItemFilter  github.ItemFilter
}

// LoadOptions controls where Load looks for values besides the environment.
type LoadOptions struct {
	ConfigFile string         // YAML file; empty = none
	EnvFile    string         // dotenv file; missing files are ignored
	Flags      *pflag.FlagSet // flags bound to keys with a Flag name
}

// Load resolves the configuration and validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg, err := Resolve(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve reads every key without checking that a run is possible.
// Precedence, highest first: changed flags, environment, config file,
// defaults. Malformed values are still rejected.
func Resolve(opts LoadOptions) (*Config, error) {
	envFile, err := loadEnvFile(opts.EnvFile)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, k := range Keys {
		if k.Default != "" {
			v.SetDefault(k.Key, k.Default)
		}
		if len(k.EnvVars) > 0 {
			args := append([]string{k.Key}, k.EnvVars...)
			if err := v.BindEnv(args...); err != nil {
				return nil, fmt.Errorf("failed to bind %s: %w", k.Key, err)
			}
		}
		if k.Flag != "" && opts.Flags != nil {
			if f := opts.Flags.Lookup(k.Flag); f != nil {
				if err := v.BindPFlag(k.Key, f); err != nil {
					return nil, fmt.Errorf("failed to bind --%s: %w", k.Flag, err)
				}
			}
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	cfg.ConfigFile = opts.ConfigFile
	cfg.EnvFile = envFile
	return cfg, nil
}

// loadEnvFile merges a dotenv file into the process environment without
// overriding variables that are already set. It returns the path it loaded.
func loadEnvFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	envMap, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	for k, val := range envMap {
		if _, exists := os.LookupEnv(k); !exists {
			_ = os.Setenv(k, val)
		}
	}
	return path, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	for _, k := range Keys {
		if err := ValidateKey(k.Key, v.GetString(k.Key)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	throttle, err := parseDuration(v.GetString("throttle"))
	if err != nil {
		return nil, fmt.Errorf("%w: throttle: %v", ErrInvalid, err)
	}
	number := 0
	if s := strings.TrimSpace(v.GetString("project.number")); s != "" {
		number, _ = strconv.Atoi(s)
	}

	cfg := &Config{
		Owner:      strings.TrimSpace(v.GetString("repository.owner")),
		OwnerType:  github.OwnerType(v.GetString("repository.owner_type")),
		Repository: strings.TrimSpace(v.GetString("repository.full_name")),
		ServerURL:  strings.TrimRight(v.GetString("server_url"), "/"),
		Endpoint:   v.GetString("api.endpoint"),
		Enterprise: v.GetBool("enterprise"),
		Token:      strings.TrimSpace(v.GetString("token")),
		DryRun:     v.GetBool("dry_run"),
		Branch:     deriveBranch(v.GetString("branch"), v.GetString("ref")),
		Throttle:   throttle,
		LogFormat:  strings.ToLower(v.GetString("log.format")),
		Project: ProjectConfig{
			Number:      number,
			Title:       v.GetString("project.title"),
			StatusField: v.GetString("project.status_field"),
			ItemFilter:  github.ItemFilter(v.GetString("project.item_filter")),
		},
	}
	cfg.RepoOwner, cfg.RepoName, _ = strings.Cut(cfg.Repository, "/")
	if cfg.Owner == "" {
		cfg.Owner = cfg.RepoOwner
	}
	cfg.Endpoint = deriveEndpoint(cfg.Endpoint, cfg.ServerURL, cfg.Enterprise)
	return cfg, nil
}

// deriveBranch returns branch when set, else the last path segment of ref
// ("refs/heads/dev" -> "dev"), else DefaultBranch.
func deriveBranch(branch, ref string) string {
	if b := strings.TrimSpace(branch); b != "" {
		return b
	}
	ref = strings.TrimSpace(ref)
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		ref = ref[i+1:]
	}
	if ref != "" {
		return ref
	}
	return DefaultBranch
}

// deriveEndpoint returns the GraphQL endpoint. An explicit endpoint wins;
// enterprise servers serve GraphQL under <server>/api/graphql.
func deriveEndpoint(explicit, serverURL string, enterprise bool) string {
	if explicit != "" {
		return explicit
	}
	if enterprise && serverURL != "" {
		return serverURL + "/api/graphql"
	}
	return graphql.DefaultEndpoint
}

// Validate reports the first setting that prevents a run.
func (c *Config) Validate() error {
	for _, k := range Keys {
		if k.Required && c.value(k.Key) == "" {
			return fmt.Errorf("%w: %s is required (set %s)", ErrInvalid, k.Key, strings.Join(k.EnvVars, " or "))
		}
	}
	if !c.OwnerType.IsValid() {
		return fmt.Errorf("%w: repository.owner_type %q", ErrInvalid, c.OwnerType)
	}
	if !c.Project.ItemFilter.IsValid() {
		return fmt.Errorf("%w: project.item_filter %q", ErrInvalid, c.Project.ItemFilter)
	}
	if c.RepoOwner == "" || c.RepoName == "" {
		return fmt.Errorf("%w: repository.full_name %q is not owner/name", ErrInvalid, c.Repository)
	}
	if c.Project.Number <= 0 && c.Project.Title == "" {
		return fmt.Errorf("%w: project.number or project.title is required", ErrInvalid)
	}
	if c.Project.StatusField == "" {
		return fmt.Errorf("%w: project.status_field is empty", ErrInvalid)
	}
	return nil
}

// value returns the resolved value of key as a string.
func (c *Config) value(key string) string {
	switch key {
	case "repository.owner":
		return c.Owner
	case "repository.owner_type":
		return string(c.OwnerType)
	case "repository.full_name":
		return c.Repository
	case "server_url":
		return c.ServerURL
	case "api.endpoint":
		return c.Endpoint
	case "enterprise":
		return strconv.FormatBool(c.Enterprise)
	case "token":
		return c.Token
	case "project.number":
		if c.Project.Number <= 0 {
			return ""
		}
		return strconv.Itoa(c.Project.Number)
	case "project.title":
		return c.Project.Title
	case "project.status_field":
		return c.Project.StatusField
	case "project.item_filter":
		return string(c.Project.ItemFilter)
	case "branch":
		return c.Branch
	case "dry_run":
		return strconv.FormatBool(c.DryRun)
	case "throttle":
		return c.Throttle.String()
	case "log.format":
		return c.LogFormat
	}
	return ""
}

// Setting is one displayed configuration value.
type Setting struct {
	Key         string
	Value       string
	Description string
}

// Redacted returns every resolved setting in key order with secrets masked.
func (c *Config) Redacted() []Setting {
	out := make([]Setting, 0, len(Keys))
	for _, k := range Keys {
		if k.Key == "ref" {
			continue
		}
		val := c.value(k.Key)
		if k.Secret {
			val = MaskToken(val)
		}
		out = append(out, Setting{Key: k.Key, Value: val, Description: k.Description})
	}
	return out
}

// MaskToken shows only the first four characters of a token.
func MaskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
