package export

import (
	"context"
	stdsql "database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codeready-toolchain/triago/pkg/models"
)

// setupSink starts a throwaway Postgres container and returns a migrated
// sink. Skipped when Docker is unavailable.
func setupSink(t *testing.T) *PostgresSink {
	t.Helper()
	if os.Getenv("CI_DATABASE_URL") == "" {
		if _, err := os.Stat("/var/run/docker.sock"); err != nil {
			t.Skip("Docker not available, skipping Postgres sink integration test")
		}
	}

	ctx := context.Background()
	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		container, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("triago_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = container.Terminate(ctx) })

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sink, err := NewPostgresSinkFromDB(db)
	require.NoError(t, err)
	return sink
}

func TestPostgresSinkExportAndIdempotentReexport(t *testing.T) {
	sink := setupSink(t)
	ctx := context.Background()
	req := terminatedRequest()

	require.NoError(t, sink.Export(ctx, req))

	// Re-export after a state change updates the same row.
	req.WorkflowStatus = models.WorkflowAssigned
	req.RoutingDecision = &models.RoutingDecision{AssignedAgentID: "agent-1", Strategy: "best_match"}
	require.NoError(t, sink.Export(ctx, req))

	var count int
	require.NoError(t, sink.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM request_telemetry WHERE request_id = $1`, req.RequestID).Scan(&count))
	assert.Equal(t, 1, count)

	var status, agentID string
	var tokens int
	require.NoError(t, sink.DB().QueryRowContext(ctx,
		`SELECT workflow_status, assigned_agent_id, tokens_total
		 FROM request_telemetry WHERE request_id = $1`, req.RequestID).
		Scan(&status, &agentID, &tokens))
	assert.Equal(t, "assigned", status)
	assert.Equal(t, "agent-1", agentID)
	assert.Equal(t, 120, tokens)
}

func TestPostgresSinkNullableFields(t *testing.T) {
	sink := setupSink(t)
	ctx := context.Background()

	// A request abandoned before any stage output has only the basics.
	req := &models.Request{
		RequestID:      "sparse-1",
		UserID:         "u9",
		SessionID:      "s9",
		CreatedAt:      time.Now().UTC(),
		WorkflowStatus: models.WorkflowAbandoned,
	}
	require.NoError(t, sink.Export(ctx, req))

	var verdict stdsql.NullString
	require.NoError(t, sink.DB().QueryRowContext(ctx,
		`SELECT quality_verdict FROM request_telemetry WHERE request_id = $1`, req.RequestID).
		Scan(&verdict))
	assert.False(t, verdict.Valid)
}
