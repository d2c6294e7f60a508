package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/OFFIS-RIT/rquest-bridge/internal/config"
	"github.com/OFFIS-RIT/rquest-bridge/pkg/rocrate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setWorkflowEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WORKFLOW_BASE_URL", "https://workflowhub.eu/workflows")
	t.Setenv("WORKFLOW_ID", "471")
	t.Setenv("WORKFLOW_VERSION", "3")
	t.Setenv("WORKFLOW_NAME", "rquest-omop-worker")
	t.Setenv("CRATE_CONFIG", "")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "bridge version dev\n", out.String())
}

func TestBuildCommandWritesCrate(t *testing.T) {
	setWorkflowEnv(t)
	dir := t.TempDir()
	queryPath := filepath.Join(dir, "q.json")
	require.NoError(t, os.WriteFile(queryPath, []byte(`{"task_id":"job-7"}`), 0o644))
	outPath := filepath.Join(dir, "job-7.zip")

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"build", "--task-id", "job-7", "--query", queryPath, "--out", outPath})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "is_availability")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	archive, err := rocrate.ReadZip(data)
	require.NoError(t, err)

	require.Len(t, archive.Files, 1)
	assert.Equal(t, "query.json", archive.Files[0].Name)
	assert.JSONEq(t, `{"task_id":"job-7"}`, string(archive.Files[0].Data))
	assert.Empty(t, archive.Graph.DanglingRefs())

	mainEntity, ok := archive.Graph.Root().Link("mainEntity")
	require.True(t, ok)
	assert.Equal(t, "https://workflowhub.eu/workflows/471?version=3", mainEntity.ID)
}

func TestBuildCommandSeedsFromMetadata(t *testing.T) {
	setWorkflowEnv(t)
	dir := t.TempDir()
	queryPath := filepath.Join(dir, "q.json")
	require.NoError(t, os.WriteFile(queryPath, []byte(`{}`), 0o644))

	seed := rocrate.NewGraph()
	wf := rocrate.NewEntity(rocrate.KindWorkflow, "https://workflowhub.eu/workflows/471?version=3", "Dataset")
	wf.Set("description", "seeded")
	seed.Put(wf)
	seedData, err := seed.MarshalJSON()
	require.NoError(t, err)
	seedPath := filepath.Join(dir, "ro-crate-metadata.json")
	require.NoError(t, os.WriteFile(seedPath, seedData, 0o644))

	outPath := filepath.Join(dir, "out.zip")
	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"build", "--task-id", "job-8", "--query", queryPath, "--seed", seedPath, "--distribution", "-o", outPath})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	archive, err := rocrate.ReadZip(data)
	require.NoError(t, err)

	got, ok := archive.Graph.Get("https://workflowhub.eu/workflows/471?version=3")
	require.True(t, ok)
	assert.Equal(t, "seeded", got.Text("description"))
	assert.Equal(t, "rquest-omop-worker", got.Text("name"))
	assert.True(t, archive.Graph.Has("#input_is_distribution"))
}

func TestBuildCommandRejectsMissingWorkflow(t *testing.T) {
	t.Setenv("WORKFLOW_BASE_URL", "")
	t.Setenv("WORKFLOW_ID", "")
	t.Setenv("CRATE_CONFIG", "")
	dir := t.TempDir()
	queryPath := filepath.Join(dir, "q.json")
	require.NoError(t, os.WriteFile(queryPath, []byte(`{}`), 0o644))

	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"build", "--task-id", "job-9", "--query", queryPath, "-o", filepath.Join(dir, "x.zip")})
	assert.Error(t, cmd.Execute())
}

func TestNewPublisherRejectsUnknownDriver(t *testing.T) {
	_, err := newPublisher(config.QueueConfig{Driver: "kafka"})
	assert.Error(t, err)

	p, err := newPublisher(config.QueueConfig{Driver: config.QueueNone})
	require.NoError(t, err)
	assert.Nil(t, p)
}
