package llm

// Trim fits a message history into maxTokens. The first message (the
// system/instruction turn) is always kept; among the rest the most recent
// messages that fit are retained, dropping oldest first. A history already
// within budget is returned unchanged, so Trim is idempotent.
func Trim(messages []Message, maxTokens int, est Estimator) []Message {
	if len(messages) == 0 {
		return messages
	}
	if EstimateHistory(messages, est) <= maxTokens {
		return messages
	}

	system := messages[0]
	total := EstimateMessage(system, est) + 2

	// Walk newest to oldest, collecting what fits after the system turn.
	kept := make([]Message, 0, len(messages))
	for i := len(messages) - 1; i >= 1; i-- {
		cost := EstimateMessage(messages[i], est)
		if total+cost > maxTokens {
			break
		}
		kept = append(kept, messages[i])
		total += cost
	}

	out := make([]Message, 0, len(kept)+1)
	out = append(out, system)
	for i := len(kept) - 1; i >= 0; i-- {
		out = append(out, kept[i])
	}
	return out
}
