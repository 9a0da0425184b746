package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string   `json:"name"`
	Retries int      `json:"retries"`
	Tags    []string `json:"tags"`
	Delay   *int     `json:"delay"`
}

func intPtr(v int) *int {
	return &v
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestReadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.json5"), `{
		// comments are allowed
		name: "base",
		retries: 2,
	}`)
	writeFile(t, filepath.Join(dir, "app.local.json5"), `{ retries: 5 }`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	require.NoError(t, err)
	require.Equal(t, testConfig{Name: "base", Retries: 5}, cfg)

	_, err = ReadConfig[testConfig](filepath.Join(dir, "missing.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadRecursively(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0700))
	writeFile(t, filepath.Join(root, "found.json5"), `{name: "root"}`)

	t.Chdir(nested)
	cfg, err := ReadRecursively[testConfig]("found.json5")
	require.NoError(t, err)
	require.Equal(t, "root", cfg.Name)
}

func TestApplyDefaults(t *testing.T) {
	cfg := testConfig{Retries: 1}
	require.NoError(t, ApplyDefaults(&cfg, testConfig{Name: "default", Retries: 3, Tags: []string{"x"}}))
	require.Equal(t, testConfig{Name: "default", Retries: 1, Tags: []string{"x"}}, cfg)
}

func TestApplyDefaultsKeepsExplicitZero(t *testing.T) {
	defaults := testConfig{Retries: 3, Delay: intPtr(1000)}

	cfg := testConfig{Delay: intPtr(0)}
	require.NoError(t, ApplyDefaults(&cfg, defaults))
	require.Equal(t, 3, cfg.Retries)
	require.Equal(t, 0, *cfg.Delay)
	require.Equal(t, 1000, *defaults.Delay)

	unset := testConfig{}
	require.NoError(t, ApplyDefaults(&unset, defaults))
	require.Equal(t, 1000, *unset.Delay)
}

func TestReadConfigLocalZero(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.json5"), `{delay: 250, retries: 2}`)
	writeFile(t, filepath.Join(dir, "app.local.json5"), `{delay: 0}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	require.NoError(t, err)
	require.Equal(t, testConfig{Retries: 2, Delay: intPtr(0)}, cfg)
}

func TestResolvePath(t *testing.T) {
	state := t.TempDir()
	t.Setenv("REPEATBOT_STATE_DIR", state)

	p, err := ResolvePath("<state>/profiles/main")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(state, "profiles", "main"), p)

	p, err = ResolvePath("/abs/path")
	require.NoError(t, err)
	require.Equal(t, "/abs/path", p)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("RB_TEST_STRING", "  value ")
	t.Setenv("RB_TEST_BOOL", "true")
	t.Setenv("RB_TEST_BAD_BOOL", "perhaps")
	t.Setenv("RB_TEST_EMPTY", "")

	s := "unchanged"
	require.True(t, EnvString("RB_TEST_STRING", &s))
	require.Equal(t, "value", s)
	require.False(t, EnvString("RB_TEST_EMPTY", &s))
	require.Equal(t, "value", s)

	b := false
	require.True(t, EnvBool("RB_TEST_BOOL", &b))
	require.True(t, b)
	require.False(t, EnvBool("RB_TEST_BAD_BOOL", &b))

	require.True(t, AnySet("RB_TEST_EMPTY", "RB_TEST_BOOL"))
	require.False(t, AnySet("RB_TEST_EMPTY", "RB_TEST_UNSET_VARIABLE"))
}
