package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Budget tracks cumulative token spend against a per-workflow ceiling
// (§4.3 cost control: "the orchestrator tracks a running token/cost total
// per workflow and stops dispatching new agents once the configured budget
// is exhausted").
type Budget struct {
	mu       sync.Mutex
	limit    int
	spent    int
	encoding *tiktoken.Tiktoken
}

// NewBudget constructs a Budget with the given token ceiling. encodingName
// falls back to "cl100k_base" (the encoding tiktoken-go ships for the GPT-4
// family) when empty or unrecognized.
func NewBudget(limit int, encodingName string) *Budget {
	if encodingName == "" {
		encodingName = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		enc, _ = tiktoken.GetEncoding("cl100k_base")
	}
	return &Budget{limit: limit, encoding: enc}
}

// CountTokens estimates the token length of a string using the configured
// encoding, falling back to a whitespace-split estimate if no encoding
// loaded (e.g. offline environments without the tiktoken BPE file cached).
func (b *Budget) CountTokens(text string) int {
	if b.encoding == nil {
		return estimateTokensForText(text)
	}
	return len(b.encoding.Encode(text, nil, nil))
}

// Reserve attempts to account for n additional tokens against the budget.
// It returns false without mutating state if the reservation would exceed
// the limit, letting the orchestrator skip dispatching the next agent
// rather than overrun the budget mid-flight.
func (b *Budget) Reserve(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && b.spent+n > b.limit {
		return false
	}
	b.spent += n
	return true
}

// Spent returns the current cumulative token spend.
func (b *Budget) Spent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spent
}

// Remaining returns how many tokens are left before the budget is
// exhausted; a non-positive limit means unbounded (returns -1).
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit <= 0 {
		return -1
	}
	if b.spent >= b.limit {
		return 0
	}
	return b.limit - b.spent
}
