//go:build integration

package ledger

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/triggerexport/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testLedger *Client

// TestMain starts a SurrealDB container shared by all ledger tests.
func TestMain(m *testing.M) {
	// ryuk does not start in some CI sandboxes
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testLedger, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, port.Port()),
		Namespace: "test",
		Database:  "runs",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test ledger: %v", err)
	}
	if err := testLedger.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testLedger.Close(ctx)
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func sampleRun(id string, mode models.RunMode, started time.Time) models.RunRecord {
	completed := started.Add(3 * time.Minute)
	watermark := int64(1612868400)
	return models.RunRecord{
		RunID:       id,
		Mode:        mode,
		Status:      models.RunStatusSucceeded,
		StartedAt:   started,
		CompletedAt: &completed,
		WindowStart: 1612828800,
		Watermark:   &watermark,
		KeptRows:    3,
		FreshRows:   4,
		OutputKey:   "PolicyTriggerCSV-1612873200-" + id + "/q.csv",
		QueryID:     "q-" + id,
	}
}

func TestRecordAndGetRun(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testLedger.WipeRuns(ctx))

	started := time.Date(2021, 2, 9, 12, 20, 0, 0, time.UTC)
	id, err := testLedger.RecordRun(ctx, sampleRun("run00001", models.RunModeIncremental, started))
	require.NoError(t, err)
	assert.Equal(t, "run00001", id)

	got, err := testLedger.GetRun(ctx, "run00001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.RunModeIncremental, got.Mode)
	assert.True(t, started.Equal(got.StartedAt))
	require.NotNil(t, got.Watermark)
	assert.Equal(t, int64(1612868400), *got.Watermark)
	assert.Equal(t, 4, got.FreshRows)
	assert.Nil(t, got.Error)

	missing, err := testLedger.GetRun(ctx, "never")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordRunTwice(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testLedger.WipeRuns(ctx))

	rec := sampleRun("run00002", models.RunModeFull, time.Now().UTC())
	_, err := testLedger.RecordRun(ctx, rec)
	require.NoError(t, err)

	_, err = testLedger.RecordRun(ctx, rec)
	assert.ErrorIs(t, err, ErrRunExists)
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testLedger.WipeRuns(ctx))

	base := time.Date(2021, 2, 9, 0, 0, 0, 0, time.UTC)
	for i, mode := range []models.RunMode{models.RunModeFull, models.RunModeIncremental, models.RunModeIncremental} {
		_, err := testLedger.RecordRun(ctx, sampleRun(fmt.Sprintf("list%04d", i), mode, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	all, err := testLedger.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "list0002", all[0].RunID, "newest first")

	incremental, err := testLedger.ListRuns(ctx, models.RunModeIncremental, 1)
	require.NoError(t, err)
	require.Len(t, incremental, 1)
	assert.Equal(t, "list0002", incremental[0].RunID)
}
