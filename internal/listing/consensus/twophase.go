package consensus

// PhaseBudget holds reply counts and retry budgets of the two-phase protocol.
type PhaseBudget struct {
	Phase1Replies    int
	Phase1MaxRetries int
	Phase2Replies    int
	Phase2MaxRetries int
}

// DefaultPhaseBudget asks for 2 unanimous replies, then 5 majority replies.
func DefaultPhaseBudget() PhaseBudget {
	return PhaseBudget{Phase1Replies: 2, Phase1MaxRetries: 4, Phase2Replies: 5, Phase2MaxRetries: 10}
}

// TwoPhase configures step as a unanimous first round escalating to a
// majority vote.
func TwoPhase(step Step, b PhaseBudget) Step {
	step.NeededReplies = b.Phase1Replies
	step.MaxRetries = b.Phase1MaxRetries
	step.ChooseBest = AllSameOrEmpty
	step.Escalate = &Phase{
		NeededReplies: b.Phase2Replies,
		MaxRetries:    b.Phase2MaxRetries,
		ChooseBest:    MostFrequent,
	}
	return step
}
