package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes taxctl with args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

// fakeAPI serves canned JSON per "METHOD path" key.
func fakeAPI(t *testing.T, routes map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"kind": "NotFound", "message": "submission not found"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "taxctl", cmd.Use)
	assert.NotEmpty(t, cmd.Long)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"migrate", "submissions", "health", "deadlines"} {
		assert.True(t, names[want], want)
	}
	for _, flag := range []string{"config", "output", "server", "token", "timeout", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRoot_RejectsUnknownOutput(t *testing.T) {
	_, _, err := runCLI(t, "--server", "http://localhost:1", "-o", "yaml", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output must be table or json")
}

func TestGetCLIContext_Missing(t *testing.T) {
	_, err := GetCLIContext(&cobra.Command{})
	assert.Error(t, err)
}

func TestFormatTable(t *testing.T) {
	out := FormatTable([]string{"ID", "STATUS"}, [][]string{{"abc", "DRAFT"}, {"a"}})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ID   STATUS", lines[0])
	assert.Equal(t, "---  ------", lines[1])
	assert.Equal(t, "abc  DRAFT", lines[2])
	assert.Equal(t, "a    ", lines[3])
	assert.Empty(t, FormatTable(nil, nil))
}

func TestPrintError_APIErrorShowsKind(t *testing.T) {
	srv := fakeAPI(t, nil)
	_, _, err := runCLI(t, "--server", srv.URL, "submissions", "get", "missing")
	require.Error(t, err)

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetErr(&buf)
	PrintError(cmd, err)
	assert.Equal(t, "Error: NotFound: submission not found\n", buf.String())
}
