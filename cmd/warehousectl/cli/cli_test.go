package cli

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
	"github.com/AlekseyRodimkin/warehouse/internal/wave"
	"github.com/AlekseyRodimkin/warehouse/jobs"
)

func TestCommandTree(t *testing.T) {
	root := NewRootCommand()
	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "version"},
		{"import"},
		{"status"},
		{"jobs", "trigger"},
		{"jobs", "inspect"},
		{"jobs", "scheduled"},
		{"seed"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		require.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestBuildTask(t *testing.T) {
	_, err := buildTask("analytics:warmup", 0)
	require.EqualError(t, err, "jobs cli: unsupported job analytics:warmup")

	_, err = buildTask(jobs.TaskPackingGenerate, 0)
	require.Error(t, err)

	task, err := buildTask(jobs.TaskPackingGenerate, 7)
	require.NoError(t, err)
	var payload jobs.PackingListPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.EqualValues(t, 7, payload.WaveID)

	task, err = buildTask(jobs.TaskIdempotencyCleanup, 0)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskIdempotencyCleanup, task.Type())
}

func TestTriggerRejectsBeforeConnecting(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), "unknown", 0)
	require.EqualError(t, err, "jobs cli: unsupported job unknown")

	_, err = c.Trigger(context.Background(), jobs.TaskIdempotencyCleanup, 0)
	require.EqualError(t, err, "jobs cli: client not configured")

	_, err = c.InspectQueue(context.Background())
	require.Error(t, err)
}

func TestImportFlags(t *testing.T) {
	flags := importFlags{kind: "outbound", stockID: 3, party: "ООО Ромашка", status: "completed", planned: "2025-03-14", actor: "ops"}
	req, err := flags.request()
	require.NoError(t, err)
	require.Equal(t, wave.KindOutbound, req.Kind)
	require.Equal(t, wave.StatusCompleted, req.Status)
	require.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), req.PlannedDate)
	require.EqualValues(t, 3, req.StockID)

	_, err = importFlags{kind: "sideways"}.request()
	require.Error(t, err)

	_, err = importFlags{kind: "inbound", planned: "14.03.2025"}.request()
	require.EqualError(t, err, "--planned must be YYYY-MM-DD")
}

func TestParseLayout(t *testing.T) {
	src := `
stocks:
  - title: MAIN
    address: Казань, ул. Складская 1
    zones:
      - title: A
        places: [A-01, A-02]
      - title: B
  - title: RESERVE
`
	inputs, err := ParseLayout(strings.NewReader(src), "ops")
	require.NoError(t, err)
	require.Len(t, inputs, 4)
	require.Equal(t, warehouse.StructureInput{Stock: "MAIN", Zone: "A", Place: "A-01", Address: "Казань, ул. Складская 1", Actor: "ops"}, inputs[0])
	require.Equal(t, "A-02", inputs[1].Place)
	require.Equal(t, "B", inputs[2].Zone)
	require.Empty(t, inputs[2].Place)
	require.Equal(t, warehouse.StructureInput{Stock: "RESERVE", Actor: "ops"}, inputs[3])

	_, err = ParseLayout(strings.NewReader("stocks:\n  - zones: [{title: A}]\n"), "")
	require.EqualError(t, err, "layout: stock without title")

	_, err = ParseLayout(strings.NewReader("warehouses: []\n"), "")
	require.Error(t, err)
}
