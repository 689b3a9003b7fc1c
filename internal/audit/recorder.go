// Package audit records security-relevant actions. Recording is best-effort: it
// never fails or delays the action being audited.
package audit

import (
	"context"
	"strings"
	"time"

	"ideaboard.app/internal/auth"
	"ideaboard.app/internal/ids"
	"ideaboard.app/internal/obs"
)

const (
	ActionLogin       = "auth.login"
	ActionTokenCreate = "token.create"
	ActionTokenRevoke = "token.revoke"
	ActionRoleChange  = "admin.role_change"

	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Entry is one append-only audit record.
type Entry struct {
	ID           string         `json:"id"`
	ActorUserID  string         `json:"actor_user_id,omitempty"`
	TokenID      string         `json:"token_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	IP           string         `json:"ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Store persists audit entries.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// List returns the most recent entries, newest first.
	List(ctx context.Context, limit int) ([]Entry, error)
}

// Publisher fans entries out to external consumers.
type Publisher interface {
	Publish(ctx context.Context, e Entry) error
}

// Recorder enriches entries from the request context and hands them to the
// background runner.
type Recorder struct {
	store      Store
	runner     auth.Submitter
	publishers []Publisher
	now        func() time.Time
}

// Option configures Recorder.
type Option func(*Recorder)

// WithPublisher adds a fan-out target for every recorded entry. It may be
// given more than once.
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) {
		if p != nil {
			r.publishers = append(r.publishers, p)
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder. A nil store records log lines only; a nil
// runner performs the write inline.
func NewRecorder(store Store, runner auth.Submitter, opts ...Option) *Recorder {
	r := &Recorder{store: store, runner: runner, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append records e. It never returns an error and never blocks on the store.
func (r *Recorder) Append(ctx context.Context, e Entry) {
	if r == nil {
		return
	}
	e.Action = strings.TrimSpace(e.Action)
	if e.Action == "" {
		obs.Warn("audit entry without action dropped", nil)
		return
	}
	e = r.enrich(ctx, e)
	if r.runner == nil {
		r.write(context.WithoutCancel(ctx), e)
		return
	}
	r.runner.Submit("audit.append", func(taskCtx context.Context) error {
		r.write(taskCtx, e)
		return nil
	})
}

// List returns recent entries. limit is clamped to [1, MaxListLimit].
func (r *Recorder) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if r == nil || r.store == nil {
		return []Entry{}, nil
	}
	return r.store.List(ctx, limit)
}

func (r *Recorder) enrich(ctx context.Context, e Entry) Entry {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	if e.RequestID == "" {
		e.RequestID = RequestIDFromContext(ctx)
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		if e.ActorUserID == "" {
			e.ActorUserID = p.UserID
		}
		if e.TokenID == "" {
			e.TokenID = p.TokenID
		}
	}
	c := clientFromContext(ctx)
	if e.IP == "" {
		e.IP = c.ip
	}
	if e.UserAgent == "" {
		e.UserAgent = c.userAgent
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	return e
}

// write runs off the request path; every failure is logged and swallowed.
func (r *Recorder) write(ctx context.Context, e Entry) {
	fields := map[string]any{
		"audit_id": e.ID,
		"actor":    e.ActorUserID,
	}
	if e.ResourceType != "" {
		fields["resource_type"] = e.ResourceType
		fields["resource_id"] = e.ResourceID
	}
	for k, v := range e.Metadata {
		if _, taken := fields[k]; !taken {
			fields[k] = v
		}
	}
	_ = LogEvent(WithRequestID(ctx, e.RequestID), e.Action, fields)

	if r.store != nil {
		if err := r.store.Append(ctx, e); err != nil {
			obs.Error("audit append failed", map[string]any{"action": e.Action, "audit_id": e.ID, "error": err})
		}
	}
	for _, p := range r.publishers {
		if err := p.Publish(ctx, e); err != nil {
			obs.Warn("audit publish failed", map[string]any{"action": e.Action, "audit_id": e.ID, "error": err})
		}
	}
}
