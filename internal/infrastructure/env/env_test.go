package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvService_TypedGetters(t *testing.T) {
	t.Setenv("OPTX_BOOL", "true")
	t.Setenv("OPTX_INT", "42")
	t.Setenv("OPTX_FLOAT", "2.5")
	t.Setenv("OPTX_DUR", "90s")
	t.Setenv("OPTX_SECS", "1.5")
	t.Setenv("OPTX_BAD", "nope")

	e := &EnvService{}

	assert.True(t, e.GetBool("OPTX_BOOL", false))
	assert.False(t, e.GetBool("OPTX_BAD", false))
	assert.Equal(t, 42, e.GetInt("OPTX_INT", 0))
	assert.Equal(t, 7, e.GetInt("OPTX_MISSING", 7))
	assert.Equal(t, 2.5, e.GetFloat("OPTX_FLOAT", 0))
	assert.Equal(t, 90*time.Second, e.GetDuration("OPTX_DUR", 0))
	assert.Equal(t, 1500*time.Millisecond, e.GetDuration("OPTX_SECS", 0))
	assert.Equal(t, time.Minute, e.GetDuration("OPTX_BAD", time.Minute))
	assert.Equal(t, "fallback", e.GetWithDefault("OPTX_MISSING", "fallback"))
}

func TestNewEnvService_LoadsAppEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPTX_LAYER=base\nOPTX_ONLY_BASE=1\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.test"), []byte("OPTX_LAYER=test\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("OPTX_LAYER")
		_ = os.Unsetenv("OPTX_ONLY_BASE")
	})
	t.Setenv("APP_ENV", "test")

	e := NewEnvService()
	assert.Equal(t, "test", e.Get("OPTX_LAYER"))
	assert.Equal(t, "1", e.Get("OPTX_ONLY_BASE"))
}
