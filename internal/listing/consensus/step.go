// Package consensus asks a completion service the same question several
// times and reduces the valid replies to one agreed answer.
package consensus

// Validator checks one raw reply and returns the value it carries.
type Validator func(raw string) (string, error)

// Strategy reduces valid values to one answer; "" means inconclusive.
type Strategy func(values []string) string

// Phase is the reply budget of one voting round.
type Phase struct {
	NeededReplies int
	MaxRetries    int
	ChooseBest    Strategy
}

// Step is one named query.
type Step struct {
	// Name labels metrics and logs; keep it low-cardinality ("selectable").
	Name string
	// CacheNamespace and CachingKey locate the persisted winning reply.
	// Either left empty disables caching for the step.
	CacheNamespace string
	CachingKey     string
	Model          string

	Prompt   func(attempt int) string
	Validate Validator

	NeededReplies int
	MaxRetries    int
	ChooseBest    Strategy

	// Escalate runs a second round when the first is inconclusive or runs out
	// of valid replies.
	Escalate *Phase

	// Apply receives the winning value. It is not called for inconclusive
	// rounds.
	Apply func(value string) error

	// OnLastFailure is called once the retry budget is spent. Returning true
	// marks the step handled instead of failing it.
	OnLastFailure func(lastReply, networkCode, reason string) bool
}

func (s Step) cacheable() bool { return s.CacheNamespace != "" && s.CachingKey != "" }

// dedupKey identifies steps that must never run concurrently.
func (s Step) dedupKey() string {
	if s.CachingKey == "" {
		return ""
	}
	return s.CacheNamespace + "\x00" + s.CachingKey
}

// Outcome is how a step finished.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeCached
	OutcomeInconclusive
	OutcomeHandled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeCached:
		return "cached"
	case OutcomeInconclusive:
		return "inconclusive"
	case OutcomeHandled:
		return "handled"
	}
	return "unknown"
}

// Result reports a finished step.
type Result struct {
	Outcome  Outcome
	Value    string
	Raw      string
	Attempts int
	Values   []string
}

// HasValue reports whether a value was applied or served from cache.
func (r *Result) HasValue() bool {
	return r != nil && (r.Outcome == OutcomeApplied || r.Outcome == OutcomeCached)
}
