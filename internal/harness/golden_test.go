package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// To regenerate golden files:
//
//	go test ./internal/harness -run TestGolden -update
func TestGolden_TitleAndRoots(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/title_and_roots.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestSnapshotJSON_OmitsEmptyFields(t *testing.T) {
	result := NewResult()
	result.Trace = append(result.Trace,
		TraceEvent{Seq: 1, Kind: "TitleChanged", Patch: map[string]any{"events": []any{}, "references": []any{}}},
		TraceEvent{Seq: 2, Kind: "ModelChanged", Origin: "peer", Node: "n1", Attr: "width", Patch: nil},
	)

	data, err := SnapshotJSON("snap", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"snap","trace":[`+
			`{"kind":"TitleChanged","patch":{"events":[],"references":[]},"seq":1},`+
			`{"attr":"width","kind":"ModelChanged","node":"n1","origin":"peer","patch":null,"seq":2}]}`,
		string(data))
}

func TestSnapshotJSON_EmptyTrace(t *testing.T) {
	data, err := SnapshotJSON("empty", NewResult())
	require.NoError(t, err)
	assert.Equal(t, `{"scenario_name":"empty","trace":[]}`, string(data))
}
