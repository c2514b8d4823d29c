package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testModels = `package models

model: Plot: {
	subtype: "Figure"
	attrs: {
		title:     string | *""
		width:     int | *600
		renderers: []
	}
}

model: Source: {
	attrs: selected: []
	columnar: ["data"]
}

model: Tool: attrs: kind: *"pan" | "zoom"
`

// executeCommand runs the root command with args and captures its output.
func executeCommand(args ...string) (stdout, stderr string, err error) {
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// modelsDir writes the test catalog into a fresh directory.
func modelsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "models.cue", testModels)
	return dir
}

// decodeResponse parses a JSON response, decoding its data into data.
func decodeResponse(t *testing.T, out string, data any) Response {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *ResponseError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	if data != nil && raw.Data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return Response{Status: raw.Status, Error: raw.Error}
}
