package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

const (
	// failureLookback is the trailing period over which failed attempts are
	// counted when deciding whether to escalate to a block. Fixed policy.
	failureLookback = 15 * time.Minute

	// maxRetainedAttempts caps the attempt log per (identifier, class).
	maxRetainedAttempts = 100
)

// Limiter enforces per-class sliding-window budgets with escalating blocks.
type Limiter struct {
	store Store
	rules map[string]Rule
	log   *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger used for storage anomalies and block events.
func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) {
		if log != nil {
			l.log = log
		}
	}
}

// WithRule registers or replaces the rule for an operation class.
func WithRule(class string, rule Rule) Option {
	return func(l *Limiter) {
		l.rules[class] = rule
	}
}

// New creates a Limiter with the given store and rules. Rules may be nil
// when all classes are registered via WithRule.
func New(store Store, rules map[string]Rule, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	l := &Limiter{
		store: store,
		rules: make(map[string]Rule, len(rules)),
		log:   slog.Default(),
	}
	for class, rule := range rules {
		l.rules[class] = rule
	}
	for _, opt := range opts {
		opt(l)
	}

	for class, rule := range l.rules {
		if err := rule.Validate(); err != nil {
			l.log.Error("invalid rate limit rule", slog.String("class", class))
			return nil, err
		}
	}

	return l, nil
}

// DefaultRules returns the standard policy table for storefront operations.
// Thresholds scale with abuse value: phone verification is expensive and
// tightly budgeted, address lookups are cheap and generous.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		"session-create": {
			Window:                time.Minute,
			MaxRequests:           10,
			BlockDuration:         15 * time.Minute,
			FailureBlockThreshold: 20,
		},
		"whatsapp-verification": {
			Window:                10 * time.Minute,
			MaxRequests:           3,
			BlockDuration:         time.Hour,
			FailureBlockThreshold: 5,
		},
		"address-lookup": {
			Window:                time.Minute,
			MaxRequests:           20,
			BlockDuration:         5 * time.Minute,
			SkipSuccessful:        true,
			FailureBlockThreshold: 10,
		},
	}
}

// Check reports whether the identifier may perform one more operation of the
// given class. It consumes nothing; callers pair it with Record.
//
// Storage failures fail open: the operation is allowed and the anomaly is
// logged, so a degraded store cannot take the storefront down.
func (l *Limiter) Check(ctx context.Context, identifier, class string) (*Result, error) {
	if identifier == "" {
		return nil, ErrIdentifierRequired
	}
	rule, ok := l.rules[class]
	if !ok {
		return nil, ErrUnknownClass
	}

	block, err := l.store.GetBlock(ctx, identifier, class)
	if err != nil {
		l.logStoreFailure("get block", class, err)
		return l.failOpen(rule), nil
	}
	if block != nil {
		return &Result{
			Allowed:    false,
			Limit:      rule.MaxRequests,
			RetryAfter: time.Until(block.ExpiresAt),
			Blocked:    true,
			Reason:     block.Reason,
		}, nil
	}

	count, err := l.store.CountAttempts(ctx, identifier, class, time.Now().Add(-rule.Window), rule.countOutcome())
	if err != nil {
		l.logStoreFailure("count attempts", class, err)
		return l.failOpen(rule), nil
	}

	if count >= rule.MaxRequests {
		l.maybeAutoBlock(ctx, identifier, class, rule)
		return &Result{
			Allowed:    false,
			Limit:      rule.MaxRequests,
			RetryAfter: rule.Window,
			Reason:     "rate limit exceeded",
		}, nil
	}

	return &Result{
		Allowed:   true,
		Limit:     rule.MaxRequests,
		Remaining: rule.MaxRequests - count - 1,
	}, nil
}

// Record appends an attempt outcome to the log. Independent of Check so that
// failed downstream calls still count against the budget.
func (l *Limiter) Record(ctx context.Context, identifier, class string, succeeded bool, metadata map[string]string) error {
	if identifier == "" {
		return ErrIdentifierRequired
	}
	rule, ok := l.rules[class]
	if !ok {
		return ErrUnknownClass
	}

	attempt := Attempt{
		Identifier: identifier,
		Class:      class,
		Succeeded:  succeeded,
		At:         time.Now(),
		Metadata:   metadata,
	}

	retention := rule.Window
	if failureLookback > retention {
		retention = failureLookback
	}

	if err := l.store.RecordAttempt(ctx, attempt, retention, maxRetainedAttempts); err != nil {
		l.logStoreFailure("record attempt", class, err)
		return nil
	}
	return nil
}

// IsBlocked reports whether the pair has an active block.
func (l *Limiter) IsBlocked(ctx context.Context, identifier, class string) (bool, error) {
	block, err := l.store.GetBlock(ctx, identifier, class)
	if err != nil {
		return false, err
	}
	return block != nil, nil
}

// BlockIdentifier creates a manual block for the pair.
func (l *Limiter) BlockIdentifier(ctx context.Context, identifier, class, reason string, duration time.Duration) error {
	if identifier == "" {
		return ErrIdentifierRequired
	}
	now := time.Now()
	block := Block{
		Identifier: identifier,
		Class:      class,
		Reason:     reason,
		BlockedAt:  now,
		ExpiresAt:  now.Add(duration),
	}
	if err := l.store.SetBlock(ctx, block); err != nil {
		return err
	}
	l.log.Warn("identifier blocked",
		slog.String("identifier", identifier),
		slog.String("class", class),
		slog.String("reason", reason),
		slog.Duration("duration", duration),
	)
	return nil
}

// Unblock removes any block for the pair.
func (l *Limiter) Unblock(ctx context.Context, identifier, class string) error {
	if identifier == "" {
		return ErrIdentifierRequired
	}
	return l.store.DeleteBlock(ctx, identifier, class)
}

// maybeAutoBlock escalates an over-limit identifier to a temporary block
// when its recent failure count meets the class threshold. Best effort: any
// storage error here only loses the escalation, not the rejection.
func (l *Limiter) maybeAutoBlock(ctx context.Context, identifier, class string, rule Rule) {
	if rule.FailureBlockThreshold <= 0 {
		return
	}

	failed, err := l.store.CountAttempts(ctx, identifier, class, time.Now().Add(-failureLookback), OutcomeFailed)
	if err != nil {
		l.logStoreFailure("count failures", class, err)
		return
	}
	if failed < rule.FailureBlockThreshold {
		return
	}

	now := time.Now()
	block := Block{
		Identifier: identifier,
		Class:      class,
		Reason:     "too many failed attempts",
		BlockedAt:  now,
		ExpiresAt:  now.Add(rule.BlockDuration),
		Attempts:   failed,
	}
	if err := l.store.SetBlock(ctx, block); err != nil {
		l.logStoreFailure("set block", class, err)
		return
	}
	l.log.Warn("identifier auto-blocked",
		slog.String("identifier", identifier),
		slog.String("class", class),
		slog.Int("failed_attempts", failed),
		slog.Duration("duration", rule.BlockDuration),
	)
}

func (rule Rule) countOutcome() Outcome {
	switch {
	case rule.SkipSuccessful:
		return OutcomeFailed
	case rule.SkipFailed:
		return OutcomeSucceeded
	default:
		return OutcomeAny
	}
}

func (l *Limiter) failOpen(rule Rule) *Result {
	return &Result{
		Allowed:   true,
		Limit:     rule.MaxRequests,
		Remaining: rule.MaxRequests,
	}
}

func (l *Limiter) logStoreFailure(op, class string, err error) {
	l.log.Error("rate limit store failure, failing open",
		slog.String("op", op),
		slog.String("class", class),
		slog.Any("error", err),
	)
}
