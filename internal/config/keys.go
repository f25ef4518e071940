package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Key describes one configuration key and where its value may come from.
type Key struct {
	Key         string   // Full key name (e.g., "project.number")
	Description string   // Human-readable description
	EnvVars     []string // Environment variables consulted in order (empty = no env mapping)
	Flag        string   // Command-line flag bound to the key (empty = none)
	Secret      bool     // Masked whenever the value is displayed
	Required    bool     // Validate fails when the resolved value is empty
	Default     string   // Default value (empty = none or derived)
	Validate    func(string) error
}

// Keys defines every recognised configuration key. Environment variable names
// follow the GitHub Actions conventions so the tool runs unmodified as an
// action step.
var Keys = []Key{
	// Repository
	{
		Key:         "repository.owner",
		Description: "Login of the user or organization that owns the repository and the board",
		EnvVars:     []string{"GITHUB_REPOSITORY_OWNER"},
		Required:    true,
	},
	{
		Key:         "repository.owner_type",
		Description: "Kind of owner account (organization, user)",
		EnvVars:     []string{"INPUT_REPOSITORY_OWNER_TYPE"},
		Default:     "organization",
		Validate:    validateOwnerType,
	},
	{
		Key:         "repository.full_name",
		Description: "Repository whose merged pull requests are scanned (owner/name)",
		EnvVars:     []string{"GITHUB_REPOSITORY"},
		Required:    true,
		Validate:    validateFullName,
	},
	// API
	{
		Key:         "server_url",
		Description: "Base URL of the GitHub server",
		EnvVars:     []string{"GITHUB_SERVER_URL"},
		Default:     "https://github.com",
		Validate:    validateURL,
	},
	{
		Key:         "api.endpoint",
		Description: "GraphQL endpoint (derived from server_url when empty)",
		EnvVars:     []string{"GITHUB_GRAPHQL_URL"},
		Validate:    validateURL,
	},
	{
		Key:         "enterprise",
		Description: "Talk to a GitHub Enterprise Server at server_url",
		EnvVars:     []string{"INPUT_ENTERPRISE_GITHUB"},
		Default:     "false",
		Validate:    validateBool,
	},
	{
		Key:         "token",
		Description: "Token with repository and project scopes",
		EnvVars:     []string{"INPUT_GH_TOKEN", "GITHUB_TOKEN"},
		Secret:      true,
		Required:    true,
	},
	// Project board
	{
		Key:         "project.number",
		Description: "Number of the project board (takes precedence over project.title)",
		EnvVars:     []string{"INPUT_PROJECT_NUMBER"},
		Validate:    validateNumber,
	},
	{
		Key:         "project.title",
		Description: "Exact title of the project board",
		EnvVars:     []string{"INPUT_PROJECT_TITLE"},
	},
	{
		Key:         "project.status_field",
		Description: "Name of the single-select status field",
		EnvVars:     []string{"INPUT_STATUS_FIELD_NAME"},
		Default:     "Status",
	},
	{
		Key:         "project.item_filter",
		Description: "Board items indexed when locating issues (all, open)",
		EnvVars:     []string{"INPUT_ITEM_FILTER"},
		Default:     "all",
		Validate:    validateItemFilter,
	},
	// Run behaviour
	{
		Key:         "branch",
		Description: "Base branch of the merged pull requests (derived from GITHUB_REF when empty)",
		EnvVars:     []string{"INPUT_BRANCH"},
	},
	{
		Key:         "ref",
		Description: "Git ref that triggered the run",
		EnvVars:     []string{"GITHUB_REF"},
	},
	{
		Key:         "dry_run",
		Description: "Log intended writes without performing them",
		EnvVars:     []string{"INPUT_DRY_RUN"},
		Flag:        "dry-run",
		Default:     "false",
		Validate:    validateBool,
	},
	{
		Key:         "throttle",
		Description: "Pause between processed pairs (duration, or milliseconds when unitless)",
		EnvVars:     []string{"INPUT_THROTTLE"},
		Default:     "400ms",
		Validate:    validateDuration,
	},
	{
		Key:         "log.format",
		Description: "Log output format (text, json)",
		EnvVars:     []string{"INPUT_LOG_FORMAT"},
		Flag:        "log-format",
		Default:     "text",
		Validate:    validateLogFormat,
	},
}

var keyMap map[string]*Key

func init() {
	keyMap = make(map[string]*Key, len(Keys))
	for i := range Keys {
		keyMap[Keys[i].Key] = &Keys[i]
	}
}

// LookupKey returns the definition of key, or nil if the key is unknown.
func LookupKey(key string) *Key {
	return keyMap[key]
}

// ValidateKey checks whether key is known and value is acceptable for it.
// Empty values are accepted here; required keys are enforced by Config.Validate.
func ValidateKey(key, value string) error {
	k := LookupKey(key)
	if k == nil {
		known := make([]string, 0, len(Keys))
		for _, k := range Keys {
			known = append(known, k.Key)
		}
		return fmt.Errorf("unknown config key %q; valid keys: %s", key, strings.Join(known, ", "))
	}
	if value == "" || k.Validate == nil {
		return nil
	}
	if err := k.Validate(value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

// KeyEnvMap returns a mapping from key to the environment variables it reads.
func KeyEnvMap() map[string][]string {
	m := make(map[string][]string, len(Keys))
	for _, k := range Keys {
		if len(k.EnvVars) > 0 {
			m[k.Key] = k.EnvVars
		}
	}
	return m
}

// Validation helpers

func validateBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false, got %q", value)
	}
	return nil
}

func validateNumber(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be a number, got %q", value)
	}
	if n < 0 {
		return fmt.Errorf("must not be negative, got %d", n)
	}
	return nil
}

func validateOwnerType(value string) error {
	switch value {
	case "organization", "user":
		return nil
	default:
		return fmt.Errorf("must be one of: organization, user; got %q", value)
	}
}

func validateItemFilter(value string) error {
	switch value {
	case "all", "open":
		return nil
	default:
		return fmt.Errorf("must be one of: all, open; got %q", value)
	}
}

func validateLogFormat(value string) error {
	switch strings.ToLower(value) {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("must be one of: text, json; got %q", value)
	}
}

func validateFullName(value string) error {
	owner, name, ok := strings.Cut(value, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("must have the form owner/name, got %q", value)
	}
	return nil
}

func validateURL(value string) error {
	if !strings.HasPrefix(value, "https://") && !strings.HasPrefix(value, "http://") {
		return fmt.Errorf("must be an http(s) URL, got %q", value)
	}
	return nil
}

func validateDuration(value string) error {
	if _, err := parseDuration(value); err != nil {
		return err
	}
	return nil
}

// parseDuration accepts Go durations ("400ms", "1s") and bare integers, which
// are read as milliseconds.
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("must not be negative, got %d", n)
		}
		return time.Duration(n) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("must be a duration like 400ms, got %q", value)
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative, got %s", d)
	}
	return d, nil
}
