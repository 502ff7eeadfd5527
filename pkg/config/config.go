package config

import (
	"fmt"

	"github.com/codeready-toolchain/triago/pkg/models"
)

// Config is the fully merged, validated runtime configuration.
type Config struct {
	Pipeline      PipelineConfig
	Thresholds    Thresholds
	Routing       RoutingConfig
	Quality       QualityConfig
	Frustration   FrustrationConfig
	Automation    AutomationConfig
	Collaborators CollaboratorsConfig
	Queue         QueueConfig
	Export        ExportConfig
	Notifications NotificationsConfig
	Agents        []models.AgentIdentity

	taskIndex map[string]*TaskConfig
}

// Stats summarizes the loaded configuration for startup logging.
type Stats struct {
	Tasks             int
	Agents            int
	LexiconCategories int
	WeightRows        int
}

// Stats returns configuration counts.
func (c *Config) Stats() Stats {
	return Stats{
		Tasks:             len(c.Automation.Tasks),
		Agents:            len(c.Agents),
		LexiconCategories: len(c.Frustration.Lexicon),
		WeightRows:        len(c.Routing.Weights),
	}
}

// TaskByID looks up a task catalog entry.
func (c *Config) TaskByID(taskID string) (*TaskConfig, error) {
	if t, ok := c.taskIndex[taskID]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// WeightsFor returns the weight table row for a priority. The row is
// guaranteed present after validation.
func (c *Config) WeightsFor(p models.Priority) CategoryWeights {
	return c.Routing.Weights[p]
}

// buildIndexes populates derived lookup structures after merge.
func (c *Config) buildIndexes() {
	c.taskIndex = make(map[string]*TaskConfig, len(c.Automation.Tasks))
	for i := range c.Automation.Tasks {
		t := &c.Automation.Tasks[i]
		c.taskIndex[t.TaskID] = t
	}
}

// fromYAML converts the merged YAML structure to the runtime Config.
// All pointers are non-nil after the builtin merge.
func fromYAML(y *TriagoYAMLConfig) *Config {
	cfg := &Config{
		Pipeline:      *y.Pipeline,
		Thresholds:    *y.Thresholds,
		Routing:       *y.Routing,
		Quality:       *y.Quality,
		Frustration:   *y.Frustration,
		Automation:    *y.Automation,
		Collaborators: *y.Collaborators,
		Queue:         *y.Queue,
		Export:        *y.Export,
		Notifications: *y.Notifications,
		Agents:        y.Agents,
	}
	cfg.buildIndexes()
	return cfg
}
