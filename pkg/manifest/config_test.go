package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
name = " hello "
secrets = ["API_TOKEN"]

[vars]
GREETING = "Hi!"

[triggers]
crons = ["*/5 * * * *", "@hourly"]

[dev]
max_body_bytes = 1024
respond_with_errors = true
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "hello", cfg.Name)
	assert.Equal(t, map[string]string{"GREETING": "Hi!"}, cfg.Vars)
	assert.Equal(t, []string{"API_TOKEN"}, cfg.Secrets)
	assert.Equal(t, []string{"*/5 * * * *", "@hourly"}, cfg.Triggers.Crons)
	assert.Equal(t, DefaultListen, cfg.Dev.Listen)
	assert.EqualValues(t, 1024, cfg.Dev.MaxBodyBytes)
	assert.True(t, cfg.Dev.RespondWithErrors)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`name = "bare"`))
	require.NoError(t, err)
	assert.Equal(t, DefaultListen, cfg.Dev.Listen)
	assert.EqualValues(t, DefaultMaxBodyBytes, cfg.Dev.MaxBodyBytes)
	assert.Empty(t, cfg.Triggers.Crons)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"syntax":        `name = `,
		"no name":       `vars = { A = "1" }`,
		"negative body": "name = \"x\"\n[dev]\nmax_body_bytes = -1",
		"tls half":      "name = \"x\"\n[dev]\ntls_cert = \"cert.pem\"",
		"empty secret":  "name = \"x\"\nsecrets = [\" \"]",
		"dup secret":    "name = \"x\"\nsecrets = [\"A\", \"A\"]",
		"secret in var": "name = \"x\"\nsecrets = [\"A\"]\n[vars]\nA = \"1\"",
		"bad cron":      "name = \"x\"\n[triggers]\ncrons = [\"every day\"]",
		"seconds cron":  "name = \"x\"\n[triggers]\ncrons = [\"0 */5 * * * *\"]",
	}
	for name, src := range cases {
		_, err := Parse([]byte(src))
		assert.Error(t, err, name)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", cfg.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSecretValues(t *testing.T) {
	t.Setenv("STEEZE_TEST_TOKEN", "s3cr3t")
	cfg := Config{Secrets: []string{"STEEZE_TEST_TOKEN", "STEEZE_TEST_UNSET"}}
	assert.Equal(t, map[string]string{"STEEZE_TEST_TOKEN": "s3cr3t"}, cfg.SecretValues())
}
