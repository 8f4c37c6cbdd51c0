// Package budget estimates prompt size so the answer service can keep the
// retrieved context within a token bound. Providers use different tokenizers,
// so it applies a conservative character heuristic: 1 token ≈ 4 characters.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message framing cost in most chat APIs.
	messageOverhead = 4

	// DefaultMaxContextTokens is the default prompt budget in tokens. It fits
	// 8k-context models while leaving room for the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s. It counts characters, not
// bytes, matching how the splitter sizes chunks.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s) / charsPerToken
	if n == 0 && s != "" {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for msgs, summing
// role and content plus framing overhead for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitChunks returns how many leading chunks fit in maxTokens once fixed
// (the prompt without any context) is accounted for. Chunks are in rank
// order, so the lowest-ranked ones are dropped first; sep is the text placed
// between consecutive chunks. The result is 0 when not even the top chunk
// fits.
func FitChunks(fixed []*schema.Message, chunks []string, sep string, maxTokens int) int {
	used := EstimateMessages(fixed)
	sepTokens := Estimate(sep)

	for i, c := range chunks {
		cost := Estimate(c)
		if i > 0 {
			cost += sepTokens
		}
		if used+cost > maxTokens {
			return i
		}
		used += cost
	}
	return len(chunks)
}
