package notify

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/codeready-toolchain/triago/pkg/models"
)

const maxBlockTextLength = 2900

var priorityEmoji = map[models.Priority]string{
	models.PriorityLow:      ":small_blue_diamond:",
	models.PriorityMedium:   ":large_orange_diamond:",
	models.PriorityHigh:     ":warning:",
	models.PriorityCritical: ":rotating_light:",
}

// BuildAssignedMessage creates Block Kit blocks for an assignment
// notification to the agent channel.
func BuildAssignedMessage(req *models.Request, agentName string) []goslack.Block {
	emoji := priorityEmoji[req.RoutingDecision.Priority]
	if emoji == "" {
		emoji = ":bell:"
	}

	header := fmt.Sprintf("%s *New case for %s* (priority: %s)",
		emoji, agentName, req.RoutingDecision.Priority)
	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}

	body := fmt.Sprintf("*Request:* %s\n*Customer:* %s", req.RequestID, req.UserID)
	if req.FrustrationAssessment != nil {
		body += fmt.Sprintf("\n*Frustration:* %s (%.1f/10)",
			req.FrustrationAssessment.Level, req.FrustrationAssessment.Score)
	}
	if req.ContextBundle != nil && req.ContextBundle.Summaries.ForHuman != "" {
		body += "\n" + truncateForSlack(req.ContextBundle.Summaries.ForHuman)
	}
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, body, false, false),
		nil, nil,
	))
	return blocks
}

// BuildQueueOverflowMessage creates blocks for a back-pressure alert.
func BuildQueueOverflowMessage(depth, overflow int) []goslack.Block {
	text := fmt.Sprintf(":hourglass: *Wait queue at capacity*: %d entries waiting (overflow threshold %d). "+
		"Low-priority submissions are being rejected.", depth, overflow)
	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// BuildCancellationMessage creates blocks telling the assigned agent the
// customer abandoned the request.
func BuildCancellationMessage(requestID, agentName string) []goslack.Block {
	text := fmt.Sprintf(":no_entry_sign: *Case cancelled*: the customer abandoned request %s assigned to %s.",
		requestID, agentName)
	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}
