package stage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/llm"
	"github.com/codeready-toolchain/triago/pkg/models"
)

const chatbotSystemInstructions = `You are a customer-service assistant. ` +
	`Answer helpfully, accurately, and with a warm professional tone. ` +
	`Keep responses concise and actionable. Never invent account details.`

// affectLexicons drive the surface-affect scan over the raw query. The
// frustration analyzer has its own configurable lexicon; these are the
// chatbot's lightweight signals for prompt shaping and telemetry.
var affectLexicons = map[string][]string{
	"urgency":     {"urgent", "asap", "immediately", "right now", "emergency", "today"},
	"frustration": {"ridiculous", "unacceptable", "terrible", "worst", "angry", "fed up", "furious"},
	"politeness":  {"please", "thank you", "thanks", "appreciate", "kindly"},
}

// refusalMarkers depress the heuristic confidence of a generated answer.
var refusalMarkers = []string{
	"i cannot", "i can't", "i am unable", "i'm unable", "i am not able",
	"as an ai", "i don't have access",
}

// Chatbot generates the customer-facing response through the LLM
// collaborator, or passes the automation payload through when automation
// already resolved the task.
type Chatbot struct {
	cfg    *config.Config
	gen    llm.Generator
	logger *slog.Logger
}

// NewChatbot creates the chatbot stage bound to one config snapshot.
func NewChatbot(cfg *config.Config, gen llm.Generator) *Chatbot {
	return &Chatbot{
		cfg:    cfg,
		gen:    gen,
		logger: slog.Default().With("component", "chatbot"),
	}
}

// Run sets req.ChatbotOutput and appends a chatbot message. On terminal
// generator failure the output stays nil; the quality gate then routes
// the request to a human.
func (c *Chatbot) Run(ctx context.Context, req *models.Request) {
	affect := surfaceAffect(req.QueryText)

	// Automation already resolved the task: surface the template verbatim.
	if req.AutomationResult != nil && req.AutomationResult.Outcome == models.AutomationCompleted {
		req.ChatbotOutput = &models.ChatbotOutput{
			Text:          req.AutomationResult.Payload,
			SurfaceAffect: affect,
			Confidence:    1.0,
			TokensUsed:    0,
		}
		req.AppendMessage(models.RoleChatbot, req.AutomationResult.Payload)
		c.logger.Info("Chatbot passed automation payload through",
			"request_id", req.RequestID,
			"task_id", req.AutomationResult.TaskID)
		return
	}

	resp, err := c.gen.Generate(ctx, &llm.GenerateRequest{
		Nonce:              uuid.NewString(),
		Prompt:             c.buildPrompt(req),
		SystemInstructions: chatbotSystemInstructions,
		MaxTokens:          c.cfg.Collaborators.LLM.MaxTokens,
	})
	if err != nil {
		// Terminal failure: no output. The pipeline continues and the
		// quality gate forces HUMAN_INTERVENTION on the null response.
		req.ChatbotOutput = nil
		req.Telemetry.RecordError("collaborator_terminal")
		c.logger.Error("Chatbot generation failed",
			"request_id", req.RequestID,
			"error", err)
		return
	}

	req.Telemetry.AddTokens(resp.TokensUsed, c.cfg.Collaborators.LLM.CostPerToken)
	req.ChatbotOutput = &models.ChatbotOutput{
		Text:          resp.Text,
		SurfaceAffect: affect,
		Confidence:    responseConfidence(resp),
		TokensUsed:    resp.TokensUsed,
	}
	req.AppendMessage(models.RoleChatbot, resp.Text)

	c.logger.Info("Chatbot stage finished",
		"request_id", req.RequestID,
		"tokens_used", resp.TokensUsed,
		"confidence", req.ChatbotOutput.Confidence)
}

func (c *Chatbot) buildPrompt(req *models.Request) string {
	var b strings.Builder
	if req.ContextBundle != nil && req.ContextBundle.Summaries.ForAI != "" {
		fmt.Fprintf(&b, "Known context:\n%s\n\n", req.ContextBundle.Summaries.ForAI)
	}
	if req.AutomationResult != nil && req.AutomationResult.Outcome == models.AutomationUnresolved {
		fmt.Fprintf(&b, "Automated handling could not resolve this (%s).\n\n", req.AutomationResult.Reason)
	}
	fmt.Fprintf(&b, "Customer query:\n%s", req.QueryText)
	return b.String()
}

// responseConfidence prefers the model's self-reported confidence and
// falls back to a length and refusal-marker heuristic.
func responseConfidence(resp *llm.GenerateResponse) float64 {
	if resp.ModelConfidence != nil {
		return clamp01(*resp.ModelConfidence)
	}

	lower := strings.ToLower(resp.Text)
	for _, marker := range refusalMarkers {
		if strings.Contains(lower, marker) {
			return 0.3
		}
	}
	words := len(strings.Fields(resp.Text))
	switch {
	case words < 5:
		return 0.4
	case words < 20:
		return 0.6
	default:
		return 0.8
	}
}

// surfaceAffect collects lexicon hits per affect category.
func surfaceAffect(queryText string) models.SurfaceAffect {
	lower := strings.ToLower(queryText)
	hit := func(category string) []string {
		var hits []string
		for _, phrase := range affectLexicons[category] {
			if strings.Contains(lower, phrase) {
				hits = append(hits, phrase)
			}
		}
		return hits
	}
	return models.SurfaceAffect{
		UrgencySignals:     hit("urgency"),
		FrustrationSignals: hit("frustration"),
		PolitenessSignals:  hit("politeness"),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
