package wfjson

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolgayilmaz86/nervemind/internal/domain"
)

func buildSample(t *testing.T) (*domain.Workflow, Positions) {
	t.Helper()

	wf, err := domain.NewWorkflow(uuid.Nil, "sample", map[string]any{"timezone": "UTC"}, domain.TriggerManual)
	require.NoError(t, err)

	start, err := domain.NewNode(uuid.Nil, "manualTrigger", "Start", nil, nil, false, "")
	require.NoError(t, err)
	require.NoError(t, wf.AddNode(start))

	work, err := domain.NewNode(uuid.Nil, "code", "Do work", map[string]any{"script": "return {ok:true}"}, nil, false, "does the thing")
	require.NoError(t, err)
	require.NoError(t, wf.AddNode(work))

	conn, err := domain.NewConnection(uuid.Nil, start.ID(), "", work.ID(), "")
	require.NoError(t, err)
	require.NoError(t, wf.AddConnection(conn))

	positions := Positions{
		start.ID(): {X: 0, Y: 0},
		work.ID(): {X: 240, Y: 0},
	}
	return wf, positions
}

func TestRoundTrip_PreservesNodeIDsAndConnections(t *testing.T) {
	wf, positions := buildSample(t)

	data, err := Encode(wf, positions)
	require.NoError(t, err)

	got, gotPositions, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, wf.ID(), got.ID())
	assert.Len(t, got.Nodes(), len(wf.Nodes()))
	for _, n := range wf.Nodes() {
		gotNode, ok := got.Node(n.ID())
		require.True(t, ok, "node %s missing after round trip", n.ID())
		assert.Equal(t, n.Type(), gotNode.Type())
		assert.Equal(t, n.Parameters(), gotNode.Parameters())
	}

	assert.Len(t, got.Connections(), len(wf.Connections()))
	for i, c := range wf.Connections() {
		gc := got.Connections()[i]
		assert.Equal(t, c.SourceNodeID(), gc.SourceNodeID())
		assert.Equal(t, c.TargetNodeID(), gc.TargetNodeID())
		assert.Equal(t, "main", gc.SourceOutput())
		assert.Equal(t, "main", gc.TargetInput())
	}

	assert.Equal(t, positions, gotPositions)
	assert.Equal(t, domain.TriggerManual, got.TriggerKind())
}

func TestDecode_RejectsConnectionToUnknownNode(t *testing.T) {
	data := []byte(`{
		"id": "` + uuid.New().String() + `",
		"name": "broken",
		"nodes": [{"id": "` + uuid.New().String() + `", "type": "manualTrigger", "name": "Start"}],
		"connections": [{"id": "` + uuid.New().String() + `", "sourceNodeId": "` + uuid.New().String() + `", "targetNodeId": "` + uuid.New().String() + `"}],
		"settings": {}
	}`)

	_, _, err := Decode(data)
	assert.Error(t, err)
}

func TestDecode_RejectsMalformedJSON(t *testing.T) {
	_, _, err := Decode([]byte(`{not valid json`))
	assert.Error(t, err)
}

func TestDecodeSampleYAML_ParsesWorkflowAndGuide(t *testing.T) {
	data, err := os.ReadFile("testdata/http_get_sample.yaml")
	require.NoError(t, err)

	wf, positions, meta, err := DecodeSampleYAML(data)
	require.NoError(t, err)

	assert.Equal(t, "Fetch a page", wf.Name())
	require.Len(t, wf.Nodes(), 2)
	require.Len(t, wf.Connections(), 1)
	assert.Empty(t, positions)

	assert.Equal(t, "http-get-sample", meta.ID)
	assert.Equal(t, "beginner", meta.Difficulty)
	assert.Equal(t, []string{"http", "beginner"}, meta.Tags)
	require.Len(t, meta.Guide, 2)
	assert.Equal(t, "Trigger manually", meta.Guide[0].Title)
}

func TestDecodeSampleYAML_RejectsMissingWorkflowSection(t *testing.T) {
	_, _, _, err := DecodeSampleYAML([]byte("sample:\n  id: x\n"))
	assert.Error(t, err)
}
