// Package ledger records the fields a run could not resolve and hands them
// to a persistent store and an operator notifier.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/models"
)

// Failure is one unresolved (SKU, field) pair. SKU is empty when the whole
// field failed.
type Failure struct {
	SKU      string    `json:"sku,omitempty"`
	Field    string    `json:"field"`
	Resolver string    `json:"resolver,omitempty"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Store persists the failures of a run.
type Store interface {
	SaveFailures(ctx context.Context, runID string, scope models.Scope, failures []Failure) error
}

// Notifier tells operators about a run that recorded failures.
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}

// Ledger collects failures of one run. It is safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	runID    string
	scope    models.Scope
	failures []Failure
	now      func() time.Time
}

func New(runID string, scope models.Scope) *Ledger {
	return &Ledger{runID: runID, scope: scope, now: time.Now}
}

func (l *Ledger) RunID() string { return l.runID }

// Record adds a failure for err; codes come from the error taxonomy.
func (l *Ledger) Record(sku models.SKU, field models.FieldID, resolver string, err error) {
	if err == nil {
		return
	}
	code := string(apperrors.CodeOf(err))
	if code == "" {
		code = string(apperrors.ErrCodeInternal)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, Failure{
		SKU:      string(sku),
		Field:    string(field),
		Resolver: resolver,
		Code:     code,
		Message:  err.Error(),
		At:       l.now().UTC(),
	})
}

func (l *Ledger) Failures() []Failure {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Failure, len(l.failures))
	copy(out, l.failures)
	return out
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.failures)
}

// Summary is the notification payload.
type Summary struct {
	RunID    string         `json:"runId"`
	Scope    models.Scope   `json:"scope"`
	Failures int            `json:"failures"`
	ByCode   map[string]int `json:"byCode"`
	Fields   []string       `json:"fields"`
}

func (l *Ledger) Summary() Summary {
	failures := l.Failures()
	s := Summary{RunID: l.runID, Scope: l.scope, Failures: len(failures), ByCode: map[string]int{}}
	fields := models.NewStringSet()
	for _, f := range failures {
		s.ByCode[f.Code]++
		fields.Add(f.Field)
	}
	s.Fields = fields.Sorted()
	return s
}

// Flush persists the failures and notifies when there are any. Either
// collaborator may be nil.
func (l *Ledger) Flush(ctx context.Context, store Store, notifier Notifier) error {
	failures := l.Failures()
	if len(failures) == 0 {
		return nil
	}
	if store != nil {
		if err := store.SaveFailures(ctx, l.runID, l.scope, failures); err != nil {
			return apperrors.NewLedgerPersistError(err)
		}
	}
	if notifier != nil {
		if err := notifier.Notify(ctx, l.Summary()); err != nil {
			return apperrors.NewLedgerPersistError(fmt.Errorf("notify: %w", err))
		}
	}
	return nil
}

func (s Summary) JSON() string {
	data, _ := json.Marshal(s)
	return string(data)
}
