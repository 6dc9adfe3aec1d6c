package consensus

import (
	"context"
	"errors"
	"fmt"

	"listing-workers/internal/common/completion"
	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/common/logger"
	"listing-workers/internal/common/metrics"
)

// Runner executes steps against a completion service.
type Runner struct {
	svc    completion.Service
	cache  *Cache
	logger logger.Logger
}

type RunnerOption func(*Runner)

// WithCache enables read-through and write-through of winning replies.
func WithCache(c *Cache) RunnerOption {
	return func(r *Runner) { r.cache = c }
}

func NewRunner(svc completion.Service, log logger.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{svc: svc, logger: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes a step: cache lookup, first round, optional escalation round.
func (r *Runner) Run(ctx context.Context, step Step) (*Result, error) {
	if step.Prompt == nil || step.Validate == nil {
		return nil, fmt.Errorf("step %s: prompt and validate are required", step.Name)
	}

	if r.cache != nil && step.cacheable() {
		if value, raw, ok := r.cache.Lookup(ctx, step.CacheNamespace, step.CachingKey, step.Validate); ok {
			metrics.ConsensusCacheHits.WithLabelValues(step.CacheNamespace).Inc()
			if step.Apply != nil {
				if err := step.Apply(value); err != nil {
					return nil, err
				}
			}
			return &Result{Outcome: OutcomeCached, Value: value, Raw: raw}, nil
		}
	}

	first := Phase{NeededReplies: step.NeededReplies, MaxRetries: step.MaxRetries, ChooseBest: step.ChooseBest}
	res, err := r.round(ctx, step, first, step.Escalate == nil)
	if err != nil {
		if step.Escalate == nil || apperrors.CodeOf(err) != apperrors.ErrCodeConsensusExhausted {
			return nil, err
		}
	}
	if err == nil && (res.Outcome != OutcomeInconclusive || step.Escalate == nil) {
		return r.finish(ctx, step, res)
	}

	r.logger.Debug("escalating step", map[string]interface{}{
		"step":       step.Name,
		"cachingKey": step.CachingKey,
	})
	res, err = r.round(ctx, step, *step.Escalate, true)
	if err != nil {
		return nil, err
	}
	return r.finish(ctx, step, res)
}

func (r *Runner) finish(ctx context.Context, step Step, res *Result) (*Result, error) {
	if res.Outcome != OutcomeApplied {
		return res, nil
	}
	if step.Apply != nil {
		if err := step.Apply(res.Value); err != nil {
			return nil, err
		}
	}
	if r.cache != nil && step.cacheable() {
		if err := r.cache.Save(ctx, step.CacheNamespace, step.CachingKey, res.Raw); err != nil {
			return nil, err
		}
	}
	return res, nil
}

type reply struct {
	raw   string
	value string
}

// round collects valid replies for one phase. final selects whether the
// step's last-failure handler runs on exhaustion.
func (r *Runner) round(ctx context.Context, step Step, phase Phase, final bool) (*Result, error) {
	needed := phase.NeededReplies
	if needed <= 0 {
		needed = 1
	}
	maxRetries := phase.MaxRetries
	if maxRetries < needed {
		maxRetries = needed
	}
	choose := phase.ChooseBest
	if choose == nil {
		choose = MostFrequent
	}

	var (
		valid       []reply
		attempts    int
		lastReply   string
		lastReason  string
		networkCode string
		networkErr  error
	)

	for len(valid) < needed && attempts < maxRetries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prompt := step.Prompt(attempts)
		attempts++

		raw, err := r.svc.Ask(ctx, step.Model, prompt)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			networkErr = err
			networkCode = "UNKNOWN"
			if ne, ok := completion.AsNetworkError(err); ok {
				networkCode = ne.Code
			}
			lastReason = err.Error()
			metrics.CompletionRequests.WithLabelValues(step.Name, "network_error").Inc()
			r.logger.Warn("completion request failed", map[string]interface{}{
				"step":    step.Name,
				"attempt": attempts,
				"code":    networkCode,
				"error":   err.Error(),
			})
			continue
		}

		lastReply = raw
		value, err := step.Validate(raw)
		if err != nil {
			lastReason = err.Error()
			metrics.CompletionRequests.WithLabelValues(step.Name, "invalid").Inc()
			r.logger.Debug("reply rejected", map[string]interface{}{
				"step":    step.Name,
				"attempt": attempts,
				"reason":  lastReason,
			})
			continue
		}
		metrics.CompletionRequests.WithLabelValues(step.Name, "valid").Inc()
		valid = append(valid, reply{raw: raw, value: value})
	}

	if len(valid) < needed {
		return r.exhausted(step, final, attempts, lastReply, networkCode, lastReason, networkErr, len(valid))
	}

	values := make([]string, len(valid))
	for i, v := range valid {
		values[i] = v.value
	}
	best := choose(values)
	if best == "" {
		return &Result{Outcome: OutcomeInconclusive, Attempts: attempts, Values: values}, nil
	}

	res := &Result{Outcome: OutcomeApplied, Value: best, Attempts: attempts, Values: values}
	for _, v := range valid {
		if v.value == best {
			res.Raw = v.raw
			break
		}
	}
	return res, nil
}

func (r *Runner) exhausted(step Step, final bool, attempts int, lastReply, networkCode, reason string, networkErr error, got int) (*Result, error) {
	metrics.ConsensusExhausted.WithLabelValues(step.Name).Inc()
	r.logger.Warn("consensus step exhausted", map[string]interface{}{
		"step":        step.Name,
		"cachingKey":  step.CachingKey,
		"attempts":    attempts,
		"validCount":  got,
		"networkCode": networkCode,
		"reason":      reason,
	})

	if final && step.OnLastFailure != nil && step.OnLastFailure(lastReply, networkCode, reason) {
		return &Result{Outcome: OutcomeHandled, Attempts: attempts}, nil
	}
	if networkErr != nil && got == 0 && lastReply == "" {
		return nil, apperrors.NewAINetworkError(networkErr).
			WithMetadata("step", step.Name).
			WithMetadata("networkCode", networkCode)
	}
	return nil, apperrors.NewConsensusExhaustedError(step.Name, attempts, reason)
}

// IsNetworkFailure reports whether err came from the completion transport.
func IsNetworkFailure(err error) bool {
	if apperrors.CodeOf(err) == apperrors.ErrCodeAINetwork {
		return true
	}
	_, ok := completion.AsNetworkError(err)
	return ok || errors.Is(err, context.DeadlineExceeded)
}
