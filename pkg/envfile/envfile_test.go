package envfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestParseDotEnv(t *testing.T) {
	path := writeTemp(t, "app.env", "FOO=bar\n\nBAZ=one=two\nEMPTY=\n")

	vars, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"FOO":   "bar",
		"BAZ":   "one=two",
		"EMPTY": "",
	}, vars)
}

func TestParseDotEnvRejectsLineWithoutEquals(t *testing.T) {
	path := writeTemp(t, "app.env", "FOO=bar\nnot-a-pair\n")

	_, err := Parse(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "equals sign")
}

func TestParseYAML(t *testing.T) {
	path := writeTemp(t, "vars.yml", "HOST: example.com\nPORT: 8080\nDEBUG: true\n")

	vars, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"HOST":  "example.com",
		"PORT":  "8080",
		"DEBUG": "true",
	}, vars)
}

func TestParseYAMLRejectsNestedCollections(t *testing.T) {
	path := writeTemp(t, "vars.yaml", "SERVICE:\n  name: web\n")

	_, err := Parse(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scalar")
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
}

func TestSaveIsDeterministicAndQuoted(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".harbormaster.env")

	require.NoError(t, Save(path, map[string]string{
		"B_VALUE": "plain",
		"A_VALUE": "has spaces",
	}))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "A_VALUE=\"has spaces\"\nB_VALUE=plain\n", string(contents))
}

func TestSaveNothingIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".harbormaster.env")
	require.NoError(t, Save(path, nil))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
