package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qaflow/qastatus/internal/github"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable a key reads so the host environment (for
// example a CI runner) cannot leak into a test. Originals are restored on
// cleanup.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range Keys {
		for _, name := range k.EnvVars {
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}
}

// actionEnv sets the variables a GitHub Actions runner provides.
func actionEnv(t *testing.T) {
	t.Helper()
	clearEnv(t)
	t.Setenv("GITHUB_REPOSITORY_OWNER", "acme")
	t.Setenv("GITHUB_REPOSITORY", "acme/app")
	t.Setenv("GITHUB_REF", "refs/heads/dev")
	t.Setenv("INPUT_GH_TOKEN", "ghp_secret")
	t.Setenv("INPUT_PROJECT_NUMBER", "7")
}

func TestLoad_ActionEnvironment(t *testing.T) {
	actionEnv(t)

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "acme", cfg.Owner)
	assert.Equal(t, github.OwnerOrganization, cfg.OwnerType)
	assert.Equal(t, "acme/app", cfg.Repository)
	assert.Equal(t, "acme", cfg.RepoOwner)
	assert.Equal(t, "app", cfg.RepoName)
	assert.Equal(t, "ghp_secret", cfg.Token)
	assert.Equal(t, 7, cfg.Project.Number)
	assert.Equal(t, "Status", cfg.Project.StatusField)
	assert.Equal(t, github.ItemFilterAll, cfg.Project.ItemFilter)
	assert.Equal(t, "dev", cfg.Branch)
	assert.Equal(t, 400*time.Millisecond, cfg.Throttle)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "https://github.com", cfg.ServerURL)
	assert.Equal(t, "https://api.github.com/graphql", cfg.Endpoint)
	assert.False(t, cfg.DryRun)
	assert.False(t, cfg.Enterprise)
}

func TestLoad_TokenFallsBackToGitHubToken(t *testing.T) {
	actionEnv(t)
	require.NoError(t, os.Unsetenv("INPUT_GH_TOKEN"))
	t.Setenv("GITHUB_TOKEN", "ghs_fallback")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ghs_fallback", cfg.Token)
}

func TestLoad_InputTokenWins(t *testing.T) {
	actionEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghs_fallback")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ghp_secret", cfg.Token)
}

func TestLoad_DryRunSpellings(t *testing.T) {
	for _, val := range []string{"True", "true", "1"} {
		t.Run(val, func(t *testing.T) {
			actionEnv(t)
			t.Setenv("INPUT_DRY_RUN", val)

			cfg, err := Load(LoadOptions{})
			require.NoError(t, err)
			assert.True(t, cfg.DryRun)
		})
	}
}

func TestLoad_Enterprise(t *testing.T) {
	actionEnv(t)
	t.Setenv("INPUT_ENTERPRISE_GITHUB", "True")
	t.Setenv("GITHUB_SERVER_URL", "https://ghe.example.com/")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.True(t, cfg.Enterprise)
	assert.Equal(t, "https://ghe.example.com/api/graphql", cfg.Endpoint)
}

func TestLoad_ExplicitEndpointWins(t *testing.T) {
	actionEnv(t)
	t.Setenv("INPUT_ENTERPRISE_GITHUB", "true")
	t.Setenv("GITHUB_SERVER_URL", "https://ghe.example.com")
	t.Setenv("GITHUB_GRAPHQL_URL", "https://proxy.example.com/graphql")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "https://proxy.example.com/graphql", cfg.Endpoint)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"token", "INPUT_GH_TOKEN"},
		{"repository", "GITHUB_REPOSITORY"},
		{"project", "INPUT_PROJECT_NUMBER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actionEnv(t)
			require.NoError(t, os.Unsetenv(tt.unset))

			_, err := Load(LoadOptions{})
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_OwnerDerivedFromRepository(t *testing.T) {
	actionEnv(t)
	require.NoError(t, os.Unsetenv("GITHUB_REPOSITORY_OWNER"))

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.Owner)
}

func TestLoad_MalformedValues(t *testing.T) {
	tests := map[string]string{
		"INPUT_REPOSITORY_OWNER_TYPE": "team",
		"INPUT_ITEM_FILTER":           "closed",
		"INPUT_PROJECT_NUMBER":        "seven",
		"INPUT_THROTTLE":              "soon",
		"INPUT_LOG_FORMAT":            "xml",
		"GITHUB_REPOSITORY":           "just-a-name",
	}

	for name, val := range tests {
		t.Run(name, func(t *testing.T) {
			actionEnv(t)
			t.Setenv(name, val)

			_, err := Resolve(LoadOptions{})
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_ProjectTitleOnly(t *testing.T) {
	actionEnv(t)
	require.NoError(t, os.Unsetenv("INPUT_PROJECT_NUMBER"))
	t.Setenv("INPUT_PROJECT_TITLE", "Sprint Board")
	t.Setenv("INPUT_REPOSITORY_OWNER_TYPE", "user")
	t.Setenv("INPUT_ITEM_FILTER", "open")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Zero(t, cfg.Project.Number)
	assert.Equal(t, "Sprint Board", cfg.Project.Title)
	assert.Equal(t, github.OwnerUser, cfg.OwnerType)
	assert.Equal(t, github.ItemFilterOpen, cfg.Project.ItemFilter)
}

func TestLoad_ThrottleMilliseconds(t *testing.T) {
	actionEnv(t)
	t.Setenv("INPUT_THROTTLE", "0")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Zero(t, cfg.Throttle)
}

func TestLoad_Flags(t *testing.T) {
	actionEnv(t)
	t.Setenv("INPUT_LOG_FORMAT", "text")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("dry-run", false, "")
	flags.String("log-format", "text", "")
	require.NoError(t, flags.Parse([]string{"--dry-run", "--log-format=json"}))

	cfg, err := Load(LoadOptions{Flags: flags})
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "json", cfg.LogFormat, "changed flag beats environment")
}

func TestLoad_UnchangedFlagKeepsEnvironment(t *testing.T) {
	actionEnv(t)
	t.Setenv("INPUT_DRY_RUN", "true")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("dry-run", false, "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(LoadOptions{Flags: flags})
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
}

func TestLoad_ConfigFile(t *testing.T) {
	actionEnv(t)
	require.NoError(t, os.Unsetenv("INPUT_PROJECT_NUMBER"))

	path := filepath.Join(t.TempDir(), "qastatus.yaml")
	content := `
project:
  title: Sprint Board
  status_field: Stage
branch: release
throttle: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(LoadOptions{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, "Sprint Board", cfg.Project.Title)
	assert.Equal(t, "Stage", cfg.Project.StatusField)
	assert.Equal(t, "release", cfg.Branch, "file branch beats GITHUB_REF")
	assert.Equal(t, time.Second, cfg.Throttle)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoad_ConfigFileMissing(t *testing.T) {
	actionEnv(t)
	_, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_REPOSITORY", "acme/app")

	path := filepath.Join(t.TempDir(), ".env")
	content := "GITHUB_REPOSITORY=other/ignored\nINPUT_GH_TOKEN=from-file\nINPUT_PROJECT_TITLE=Board\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(LoadOptions{EnvFile: path})
	require.NoError(t, err)
	assert.Equal(t, "acme/app", cfg.Repository, "process environment beats .env")
	assert.Equal(t, "from-file", cfg.Token)
	assert.Equal(t, "Board", cfg.Project.Title)
	assert.Equal(t, path, cfg.EnvFile)
}

func TestLoad_EnvFileMissingIsIgnored(t *testing.T) {
	actionEnv(t)
	cfg, err := Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), ".env")})
	require.NoError(t, err)
	assert.Empty(t, cfg.EnvFile)
}

func TestDeriveBranch(t *testing.T) {
	tests := []struct {
		branch, ref, want string
	}{
		{"main", "refs/heads/dev", "main"},
		{"", "refs/heads/staging", "staging"},
		{"", "refs/heads/feature/login", "login"},
		{"", "dev", "dev"},
		{"", "", DefaultBranch},
		{"  ", "refs/heads/", DefaultBranch},
	}
	for _, tt := range tests {
		if got := deriveBranch(tt.branch, tt.ref); got != tt.want {
			t.Errorf("deriveBranch(%q, %q) = %q, want %q", tt.branch, tt.ref, got, tt.want)
		}
	}
}

func TestRedacted(t *testing.T) {
	actionEnv(t)
	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	settings := cfg.Redacted()
	values := make(map[string]string, len(settings))
	for _, s := range settings {
		values[s.Key] = s.Value
		assert.NotEmpty(t, s.Description, s.Key)
	}

	assert.Equal(t, "ghp_****", values["token"])
	assert.Equal(t, "7", values["project.number"])
	assert.Equal(t, "dev", values["branch"])
	assert.Equal(t, "400ms", values["throttle"])
	assert.NotContains(t, values, "ref")
	for _, v := range values {
		assert.NotContains(t, v, "ghp_secret")
	}
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "(not set)", MaskToken(""))
	assert.Equal(t, "****", MaskToken("abc"))
	assert.Equal(t, "ghp_****", MaskToken("ghp_abcdef"))
}
