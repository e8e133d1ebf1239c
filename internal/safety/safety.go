// Package safety implements the keyword crisis gate that runs before every
// chat turn. The phrase list is a stopgap, not a moderation system; the
// orchestrator treats the whole check as replaceable and fail-open.
package safety

import (
	"strings"

	"github.com/well-bot-agent/internal/envelope"
	"github.com/well-bot-agent/internal/logger"
)

const toolName = "safety.check"

const supportBody = "If you're having thoughts of self-harm, please reach out for help. " +
	"You can contact the National Suicide Prevention Lifeline at 988 or text HOME to 741741 " +
	"for crisis support. You're not alone, and there are people who care about you."

var concerningPhrases = []string{
	"hurt myself", "kill myself", "end it all", "not worth living",
	"suicide", "self harm", "cut myself", "overdose",
}

type Gate struct {
	log     *logger.Logger
	phrases []string
}

func NewGate(log *logger.Logger) *Gate {
	return &Gate{log: log, phrases: concerningPhrases}
}

// Check scans text for crisis phrases (case-insensitive substring match).
// A match produces the support card with meta.action="show_support_card";
// otherwise a neutral card with meta.action="none" is returned. Check never
// fails and never logs the raw input.
func (g *Gate) Check(text, userID, sessionID string) envelope.Card {
	lowered := strings.ToLower(text)

	var found []string
	for _, phrase := range g.phrases {
		if strings.Contains(lowered, phrase) {
			found = append(found, phrase)
		}
	}

	if len(found) > 0 {
		g.log.Info("safety check triggered: user=%s session=%s concerns=%d text=%s",
			userID, sessionID, len(found), logger.Mask(text))
		return envelope.OkCard(
			"Support Resources",
			supportBody,
			map[string]any{
				"kind":           "info",
				"action":         "show_support_card",
				"concerns_found": found,
			},
			envelope.Diagnostics{Tool: toolName},
		)
	}

	return envelope.OkCard(
		"Safety Check Complete",
		"No safety concerns detected.",
		map[string]any{
			"kind":   "info",
			"action": "none",
		},
		envelope.Diagnostics{Tool: toolName},
	)
}
