// Package stage implements the request pipeline: automation, chatbot,
// quality gate, frustration analysis, context aggregation, and the
// orchestration that drives a request through them with early exits.
package stage

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/models"
)

// fieldExtractors maps required-field names to deterministic extractors
// over the raw utterance. Unknown fields never match.
var fieldExtractors = map[string]*regexp.Regexp{
	"email":        regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	"order_number": regexp.MustCompile(`(?i)\b(?:order|#)\s*#?\s*([A-Z0-9]{4,})\b`),
	"account_id":   regexp.MustCompile(`(?i)\baccount\s*#?\s*([A-Z0-9\-]{4,})\b`),
	"phone":        regexp.MustCompile(`\+?\d[\d\s\-()]{7,}\d`),
	"amount":       regexp.MustCompile(`[$€£]\s?\d+(?:[.,]\d{2})?`),
}

var punctStripper = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// Automation tries to resolve routine tasks from the configured catalog.
// It never sets the final response; it only records an AutomationResult
// for the chatbot stage to surface.
type Automation struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewAutomation creates the automation stage bound to one config snapshot.
func NewAutomation(cfg *config.Config) *Automation {
	return &Automation{
		cfg:    cfg,
		logger: slog.Default().With("component", "automation"),
	}
}

// Run matches the query against the task catalog and populates
// req.AutomationResult. Internal failures degrade to an unresolved
// outcome with reason automation_error; the stage never fails the request.
func (a *Automation) Run(req *models.Request) {
	result := a.resolve(req.QueryText)
	req.AutomationResult = result

	a.logger.Info("Automation stage finished",
		"request_id", req.RequestID,
		"task_id", result.TaskID,
		"outcome", result.Outcome,
		"reason", result.Reason)
}

func (a *Automation) resolve(queryText string) *models.AutomationResult {
	task, score := a.bestMatch(queryText)
	if task == nil {
		return &models.AutomationResult{
			Outcome: models.AutomationUnresolved,
			Reason:  "no_matching_task",
		}
	}

	a.logger.Debug("Task matched", "task_id", task.TaskID, "score", score)

	// Tasks that always require human review escalate regardless of fields.
	if task.EscalationReason != "" {
		return &models.AutomationResult{
			TaskID:  task.TaskID,
			Outcome: models.AutomationUnresolved,
			Reason:  task.EscalationReason,
		}
	}

	fields, missing := extractFields(queryText, task.RequiredFields)
	if len(missing) > 0 {
		return &models.AutomationResult{
			TaskID:  task.TaskID,
			Outcome: models.AutomationUnresolved,
			Reason:  fmt.Sprintf("missing_fields(%s)", strings.Join(missing, ",")),
		}
	}

	return &models.AutomationResult{
		TaskID:  task.TaskID,
		Outcome: models.AutomationCompleted,
		Payload: renderTemplate(task.ResponseTemplate, fields),
	}
}

// bestMatch scores every catalog task by normalized keyword overlap and
// returns the highest scorer above the match threshold. Ties break by
// higher success rate, then alphabetical task id.
func (a *Automation) bestMatch(queryText string) (*config.TaskConfig, float64) {
	tokens := tokenSet(queryText)
	if len(tokens) == 0 {
		return nil, 0
	}

	type scored struct {
		task  *config.TaskConfig
		score float64
	}
	var candidates []scored
	for i := range a.cfg.Automation.Tasks {
		task := &a.cfg.Automation.Tasks[i]
		if len(task.TriggerKeywords) == 0 {
			continue
		}
		hits := 0
		for _, kw := range task.TriggerKeywords {
			if tokens[strings.ToLower(kw)] {
				hits++
			}
		}
		score := float64(hits) / float64(len(task.TriggerKeywords))
		if score >= a.cfg.Automation.MatchThreshold {
			candidates = append(candidates, scored{task: task, score: score})
		}
	}
	if len(candidates) == 0 {
		return nil, 0
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].task.SuccessRate != candidates[j].task.SuccessRate {
			return candidates[i].task.SuccessRate > candidates[j].task.SuccessRate
		}
		return candidates[i].task.TaskID < candidates[j].task.TaskID
	})
	return candidates[0].task, candidates[0].score
}

// extractFields runs the per-field extractors over the utterance and
// reports which required fields could not be found.
func extractFields(queryText string, required []string) (map[string]string, []string) {
	fields := make(map[string]string, len(required))
	var missing []string
	for _, name := range required {
		re, ok := fieldExtractors[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		m := re.FindStringSubmatch(queryText)
		switch {
		case m == nil:
			missing = append(missing, name)
		case len(m) > 1:
			fields[name] = m[1]
		default:
			fields[name] = m[0]
		}
	}
	return fields, missing
}

// renderTemplate substitutes {field} placeholders with extracted values.
func renderTemplate(tmpl string, fields map[string]string) string {
	out := tmpl
	for name, value := range fields {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}

// tokenSet case-folds, strips punctuation, and splits into a word set.
func tokenSet(text string) map[string]bool {
	clean := punctStripper.ReplaceAllString(strings.ToLower(text), " ")
	set := make(map[string]bool)
	for _, tok := range strings.Fields(clean) {
		set[tok] = true
	}
	return set
}
