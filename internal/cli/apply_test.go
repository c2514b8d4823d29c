package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addPlotPatch = `{"events":[{"kind":"RootAdded","model":{"id":"p1","type":"Plot","subtype":"Figure"}}],` +
		`"references":[{"id":"p1","type":"Plot","subtype":"Figure","attributes":{"title":"hello"}}]}`
	widenPatch = `{"events":[{"kind":"ModelChanged","model":{"id":"p1","type":"Plot","subtype":"Figure"},"attr":"width","new":800}],"references":[]}`
	titlePatch = `{"events":[{"kind":"TitleChanged","title":"Report"}],"references":[]}`
	ghostPatch = `{"events":[{"kind":"ModelChanged","model":{"id":"ghost","type":"Plot"},"attr":"width","new":1}],"references":[]}`
)

// patchFiles writes the given patches as numbered files.
func patchFiles(t *testing.T, patches ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(patches))
	for i, p := range patches {
		paths[i] = writeFile(t, dir, fmt.Sprintf("patch%d.json", i+1), p)
	}
	return paths
}

// applyJournaled applies the three base patches into a fresh journal and
// returns the catalog dir, the journal path and the document id.
func applyJournaled(t *testing.T) (models, db, docID string) {
	t.Helper()
	models = modelsDir(t)
	db = filepath.Join(t.TempDir(), "docs.db")

	args := append([]string{"apply", "--format", "json", "--catalog", models, "--db", db},
		patchFiles(t, addPlotPatch, widenPatch, titlePatch)...)
	out, _, err := executeCommand(args...)
	require.NoError(t, err, out)

	var res ApplyResult
	resp := decodeResponse(t, out, &res)
	require.Equal(t, "ok", resp.Status)
	return models, db, res.Document
}

func TestApply_NewDocument(t *testing.T) {
	models := modelsDir(t)
	outFile := filepath.Join(t.TempDir(), "final.json")

	args := append([]string{"apply", "--catalog", models, "--out", outFile},
		patchFiles(t, addPlotPatch, widenPatch, titlePatch)...)
	out, _, err := executeCommand(args...)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Applied 3 patch(es)")
	assert.Contains(t, out, "Title: Report")
	assert.Contains(t, out, "Roots: 1, models: 1")
	assert.NotContains(t, out, "Journaled")

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title":"Report"`)
	assert.Contains(t, string(data), `"width":800`)
}

func TestApply_Journaled(t *testing.T) {
	models := modelsDir(t)
	db := filepath.Join(t.TempDir(), "docs.db")

	args := append([]string{"apply", "--format", "json", "--catalog", models, "--db", db},
		patchFiles(t, addPlotPatch, widenPatch, titlePatch)...)
	out, _, err := executeCommand(args...)
	require.NoError(t, err)

	var res ApplyResult
	decodeResponse(t, out, &res)
	assert.NotEmpty(t, res.Document)
	assert.Equal(t, 3, res.Applied)
	assert.Equal(t, "Report", res.Title)
	assert.Positive(t, res.Journaled)
	assert.Positive(t, res.LastSeq)
}

func TestApply_FromFileWithEnv(t *testing.T) {
	t.Setenv(EnvCatalog, modelsDir(t))
	doc := writeFile(t, t.TempDir(), "doc.json", plotDocument)

	out, _, err := executeCommand(append([]string{"apply", "--format", "json", "--from", doc},
		patchFiles(t, titlePatch)...)...)
	require.NoError(t, err)

	var res ApplyResult
	decodeResponse(t, out, &res)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Models)
	assert.Equal(t, "Report", res.Title)
}

func TestApply_ContinuesJournaledDocument(t *testing.T) {
	models, db, docID := applyJournaled(t)
	outFile := filepath.Join(t.TempDir(), "final.json")

	retitle := `{"events":[{"kind":"TitleChanged","title":"Second"}],"references":[]}`
	out, _, err := executeCommand(append([]string{"apply", "--format", "json",
		"--catalog", models, "--db", db, "--doc", docID, "--out", outFile},
		patchFiles(t, retitle)...)...)
	require.NoError(t, err, out)

	var res ApplyResult
	decodeResponse(t, out, &res)
	assert.Equal(t, docID, res.Document)
	assert.Equal(t, "Second", res.Title)
	assert.Equal(t, 1, res.Models)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"width":800`)
}

func TestApply_FailingPatch(t *testing.T) {
	models := modelsDir(t)

	out, _, err := executeCommand(append([]string{"apply", "--format", "json", "--catalog", models},
		patchFiles(t, addPlotPatch, ghostPatch, titlePatch)...)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var res ApplyResult
	resp := decodeResponse(t, out, &res)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "UNKNOWN_REFERENCE", resp.Error.Code)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Roots)
}

func TestApply_CommandErrors(t *testing.T) {
	models := modelsDir(t)
	patch := patchFiles(t, titlePatch)[0]

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no catalog", []string{"apply", patch}, "--catalog or DOCSYNC_CATALOG is required"},
		{"missing catalog", []string{"apply", "--catalog", "/nonexistent", patch}, "failed to load catalog"},
		{"doc without db", []string{"apply", "--catalog", models, "--doc", "x", patch}, "--doc needs a journal"},
		{"unknown doc", []string{"apply", "--catalog", models, "--db", filepath.Join(t.TempDir(), "j.db"), "--doc", "x", patch}, "failed to load document"},
		{"missing from", []string{"apply", "--catalog", models, "--from", "/nonexistent.json", patch}, "failed to load document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvCatalog, "")
			t.Setenv(EnvDB, "")
			_, _, err := executeCommand(tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApply_DocAndFromExclusive(t *testing.T) {
	_, _, err := executeCommand("apply", "--doc", "x", "--from", "y.json", "p.json")
	require.Error(t, err)
}
