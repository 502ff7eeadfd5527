package export

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// PostgresSink persists terminated requests' telemetry rows.
type PostgresSink struct {
	db *stdsql.DB
}

// NewPostgresSink opens the connection pool and runs schema migrations.
func NewPostgresSink(ctx context.Context, cfg *config.PostgresConfig) (*PostgresSink, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, os.Getenv(cfg.PasswordEnv), cfg.Database, cfg.SSLMode,
	)

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresSink{db: db}, nil
}

// NewPostgresSinkFromDB wraps an existing connection (useful for testing).
func NewPostgresSinkFromDB(db *stdsql.DB) (*PostgresSink, error) {
	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

// DB returns the underlying connection for health checks.
func (s *PostgresSink) DB() *stdsql.DB {
	return s.db
}

// Export inserts one telemetry row. Re-exporting the same request id
// updates the existing row so retried exports stay idempotent.
func (s *PostgresSink) Export(ctx context.Context, req *models.Request) error {
	durations, err := json.Marshal(req.Telemetry.StageDurations)
	if err != nil {
		return fmt.Errorf("failed to marshal stage durations: %w", err)
	}
	retries, err := json.Marshal(req.Telemetry.Retries)
	if err != nil {
		return fmt.Errorf("failed to marshal retries: %w", err)
	}
	stageErrors, err := json.Marshal(req.Telemetry.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}

	var qualityScore *float64
	var qualityVerdict *string
	if req.QualityAssessment != nil {
		qualityScore = &req.QualityAssessment.Score
		v := string(req.QualityAssessment.Verdict)
		qualityVerdict = &v
	}
	var frustrationScore *float64
	var frustrationLevel *string
	if req.FrustrationAssessment != nil {
		frustrationScore = &req.FrustrationAssessment.Score
		l := string(req.FrustrationAssessment.Level)
		frustrationLevel = &l
	}
	var agentID, strategy *string
	if req.RoutingDecision != nil {
		if req.RoutingDecision.AssignedAgentID != "" {
			agentID = &req.RoutingDecision.AssignedAgentID
		}
		strategy = &req.RoutingDecision.Strategy
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO request_telemetry (
			request_id, user_id, session_id, created_at, terminated_at,
			workflow_status, quality_score, quality_verdict,
			frustration_score, frustration_level, assigned_agent_id,
			routing_strategy, tokens_total, cost_total,
			stage_durations, retries, errors
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (request_id) DO UPDATE SET
			terminated_at = EXCLUDED.terminated_at,
			workflow_status = EXCLUDED.workflow_status,
			quality_score = EXCLUDED.quality_score,
			quality_verdict = EXCLUDED.quality_verdict,
			frustration_score = EXCLUDED.frustration_score,
			frustration_level = EXCLUDED.frustration_level,
			assigned_agent_id = EXCLUDED.assigned_agent_id,
			routing_strategy = EXCLUDED.routing_strategy,
			tokens_total = EXCLUDED.tokens_total,
			cost_total = EXCLUDED.cost_total,
			stage_durations = EXCLUDED.stage_durations,
			retries = EXCLUDED.retries,
			errors = EXCLUDED.errors`,
		req.RequestID, req.UserID, req.SessionID, req.CreatedAt, time.Now().UTC(),
		string(req.WorkflowStatus), qualityScore, qualityVerdict,
		frustrationScore, frustrationLevel, agentID,
		strategy, req.Telemetry.TokensTotal, req.Telemetry.CostTotal,
		durations, retries, stageErrors,
	)
	if err != nil {
		return fmt.Errorf("failed to insert telemetry row: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

func runMigrations(db *stdsql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migration source: %w", err)
	}
	defer func() { _ = source.Close() }()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
