package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/models"
)

var (
	// ErrDirectoryUnavailable indicates no agent snapshot could be taken;
	// the request is enqueued with the degraded-routing flag.
	ErrDirectoryUnavailable = errors.New("directory unavailable")

	// ErrContentionExhausted indicates the assignment commit kept losing
	// races within the reselect budget.
	ErrContentionExhausted = errors.New("assignment contention retries exhausted")
)

// AgentDirectory is the subset of the directory the assigner drives.
type AgentDirectory interface {
	SnapshotAll(ctx context.Context) ([]models.AgentSnapshot, error)
	ClaimForAssignment(agentID string) (string, error)
	CommitAssignment(token, requestID string) error
	ReleaseAssignment(token string)
}

// Assigner runs the full selection loop: score a snapshot, claim the
// winner, commit atomically, and re-score with a fresh snapshot on a
// lost race, up to the configured attempt budget.
type Assigner struct {
	dir    AgentDirectory
	logger *slog.Logger
}

// NewAssigner creates an assigner over the given directory.
func NewAssigner(dir AgentDirectory) *Assigner {
	return &Assigner{
		dir:    dir,
		logger: slog.Default().With("component", "routing"),
	}
}

// Assign selects and atomically commits one agent for the input. The
// configuration is sampled once per scoring pass. On success the returned
// decision has AssignedAgentID set.
func (a *Assigner) Assign(ctx context.Context, cfg *config.Config, input *Input) (*models.RoutingDecision, error) {
	attempts := cfg.Thresholds.ReselectAttempts

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		snapshot, err := a.dir.SnapshotAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
		}

		scorer := NewScorer(cfg)
		result, err := scorer.Select(input, snapshot)
		if err != nil {
			return nil, err
		}

		token, err := a.dir.ClaimForAssignment(result.Best.AgentID)
		if err != nil {
			// Lost the race between snapshot and claim; re-score fresh.
			a.logger.Debug("Claim lost, re-scoring",
				"request_id", input.RequestID,
				"agent_id", result.Best.AgentID,
				"attempt", attempt+1,
				"error", err)
			continue
		}

		if err := a.dir.CommitAssignment(token, input.RequestID); err != nil {
			a.dir.ReleaseAssignment(token)
			a.logger.Debug("Commit lost, re-scoring",
				"request_id", input.RequestID,
				"agent_id", result.Best.AgentID,
				"attempt", attempt+1,
				"error", err)
			continue
		}

		a.logger.Info("Agent assigned",
			"request_id", input.RequestID,
			"agent_id", result.Best.AgentID,
			"strategy", result.Strategy,
			"composite", result.Best.Composite,
			"confidence", result.Confidence)

		return &models.RoutingDecision{
			AssignedAgentID: result.Best.AgentID,
			Strategy:        result.Strategy,
			RequiredSkills:  input.RequiredSkills,
			Priority:        input.Priority,
			Complexity:      input.Complexity,
			MatchScore:      result.Best.Composite,
			Confidence:      result.Confidence,
			FallbackRank:    scorer.Fallbacks(result),
		}, nil
	}

	return nil, ErrContentionExhausted
}
