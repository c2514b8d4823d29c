package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplay_ListDocuments(t *testing.T) {
	_, db, docID := applyJournaled(t)

	out, _, err := executeCommand("replay", "--format", "json", "--db", db)
	require.NoError(t, err)

	var res ReplayResult
	decodeResponse(t, out, &res)
	require.Len(t, res.Documents, 1)
	doc := res.Documents[0]
	assert.Equal(t, docID, doc.ID)
	assert.Empty(t, doc.Title, "title comes from the snapshot taken before any patch")
	assert.Positive(t, doc.Patches)
	assert.Greater(t, doc.LastSeq, doc.SnapshotSeq)
	assert.Nil(t, doc.Deterministic)
}

func TestReplay_ListText(t *testing.T) {
	_, db, docID := applyJournaled(t)

	out, _, err := executeCommand("replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "1 document(s)")
	assert.Contains(t, out, docID+` ""`)
}

func TestReplay_EmptyJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")

	out, _, err := executeCommand("replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No documents found in journal.")
}

func TestReplay_Deterministic(t *testing.T) {
	models, db, docID := applyJournaled(t)
	outFile := filepath.Join(t.TempDir(), "restored.json")

	out, _, err := executeCommand("replay", "--format", "json",
		"--db", db, "--catalog", models, "--out", outFile, docID)
	require.NoError(t, err, out)

	var res ReplayResult
	decodeResponse(t, out, &res)
	require.Len(t, res.Documents, 1)
	doc := res.Documents[0]
	require.NotNil(t, doc.Deterministic)
	assert.True(t, *doc.Deterministic)
	assert.Equal(t, 1, doc.Models)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title":"Report"`)
	assert.Contains(t, string(data), `"width":800`)
}

func TestReplay_Text(t *testing.T) {
	models, db, docID := applyJournaled(t)

	out, _, err := executeCommand("replay", "--db", db, "--catalog", models, docID)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Restored "+docID)
	assert.Contains(t, out, "✓ Replay verified deterministic")
}

func TestReplay_UnknownDocument(t *testing.T) {
	models, db, _ := applyJournaled(t)

	_, _, err := executeCommand("replay", "--db", db, "--catalog", models, "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to find document")
}

func TestReplay_RequiresCatalog(t *testing.T) {
	t.Setenv(EnvCatalog, "")
	_, db, docID := applyJournaled(t)

	_, _, err := executeCommand("replay", "--db", db, docID)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--catalog or DOCSYNC_CATALOG is required")
}
