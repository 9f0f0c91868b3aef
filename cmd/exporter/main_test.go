package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comexexport/internal/pipeline"
)

const countryList = `{"data":{"list":[
	{"text":"Chile","value":"158"},
	{"text":"China","value":"160"},
	{"text":"Estados Unidos","value":"249"}
]}}`

func fakeComexStat(t *testing.T, countries string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/general/filters/country":
			_, _ = io.WriteString(w, countries)
		case "/general":
			_, _ = io.WriteString(w, `{"data":{"list":[{"year":2023,"chapter":"26","fob":1500.5},{"year":2024,"chapter":"26"}]}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"COMEXSTAT_BASE_URL", "COMEXSTAT_LANGUAGE", "COMEXSTAT_START_YEAR", "COMEXSTAT_END_YEAR",
		"COMEXSTAT_PER_PAGE", "COMEXSTAT_OUTPUT", "COMEXSTAT_CACHE_DB", "COMEXSTAT_CACHE_TTL", "COMEXSTAT_TERMS",
		"COMEXSTAT_FILTERS_PATH", "COMEXSTAT_GENERAL_PATH",
	} {
		t.Setenv(key, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootRunsExport(t *testing.T) {
	isolateEnv(t)
	server := fakeComexStat(t, countryList)
	output := filepath.Join(t.TempDir(), "export.csv")

	stdout, err := execute(t, "--base-url", server.URL, "--out", output)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Saved 2 rows")

	written, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "year,chapter,fob\n2023,26,1500.5\n2024,26,\n", string(written))
}

func TestRunWithCache(t *testing.T) {
	isolateEnv(t)
	server := fakeComexStat(t, countryList)
	dir := t.TempDir()
	args := []string{"run", "--base-url", server.URL, "--out", filepath.Join(dir, "out.csv"), "--cache-db", filepath.Join(dir, "cache.db")}

	_, err := execute(t, args...)
	require.NoError(t, err)
	_, err = execute(t, args...)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
}

func TestRunNoMatch(t *testing.T) {
	isolateEnv(t)
	server := fakeComexStat(t, `{"data":{"list":[{"text":"Chile","value":"158"}]}}`)
	output := filepath.Join(t.TempDir(), "export.csv")

	stdout, err := execute(t, "run", "--base-url", server.URL, "--out", output)
	require.NoError(t, err, "failures exit normally unless --strict is set")
	assert.Contains(t, stdout, "Could not detect")

	_, err = execute(t, "run", "--strict", "--base-url", server.URL, "--out", output)
	require.ErrorIs(t, err, pipeline.ErrNoMatch)
	assert.Contains(t, err.Error(), "resolve")

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestInvalidConfig(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "run", "--start-year", "2030", "--end-year", "2020")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start year 2030 is after end year 2020")
}

func TestCountries(t *testing.T) {
	isolateEnv(t)
	server := fakeComexStat(t, countryList)

	stdout, err := execute(t, "countries", "--base-url", server.URL, "chi")
	require.NoError(t, err)
	assert.Contains(t, stdout, "158      Chile")
	assert.Contains(t, stdout, "160      China")
	assert.NotContains(t, stdout, "Estados Unidos")
	assert.Contains(t, stdout, "2 entries")
}
