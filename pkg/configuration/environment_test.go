package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "HIERARCHY_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "hierarchy")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(sub))

	_ = os.Unsetenv("HIERARCHY_TEST_ENV_LOAD")
	t.Cleanup(func() { _ = os.Unsetenv("HIERARCHY_TEST_ENV_LOAD") })

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("HIERARCHY_TEST_ENV_LOAD"))
}

func TestLoadEnv_NoFiles(t *testing.T) {
	tmp := t.TempDir()
	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(tmp))

	n, err := LoadEnv([]string{".env"})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestParse_Defaults(t *testing.T) {
	t.Setenv("HIERARCHY_API_URL", "http://backend:8000/api")
	t.Setenv("HIERARCHY_API_TOKEN", "secret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	c, err := Parse()
	require.NoError(t, err)
	require.Equal(t, "http://backend:8000/api", c.HierarchyAPI.URL)
	require.Equal(t, "Bearer secret", c.HierarchyAPI.Authorization())
	require.Equal(t, 30*time.Second, c.HierarchyAPI.Timeout)
	require.Equal(t, 5*time.Minute, c.CustomFields.CacheTTL)
	require.Equal(t, "localhost:3200", c.SocketAddress)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, c.Origins())
	require.False(t, c.Artifacts.MinioEnabled())
}

func TestParse_RejectsRedisRateLimitWithoutURL(t *testing.T) {
	t.Setenv("RATE_LIMIT_STORAGE", "redis")
	t.Setenv("RATE_LIMIT_REDIS_URL", "")

	_, err := Parse()
	require.Error(t, err)
}

func TestHierarchyAPIOptions_AuthorizationKeepsScheme(t *testing.T) {
	o := HierarchyAPIOptions{Token: "Basic abc"}
	require.Equal(t, "Basic abc", o.Authorization())
	require.Empty(t, (&HierarchyAPIOptions{}).Authorization())
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
