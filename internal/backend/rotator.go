package backend

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/praxian-ai/scout/internal/metrics"
)

// Credential is a single API credential in the rotation pool.
type Credential struct {
	APIKey string
	Label  string
}

// Preference tracks the last credential index that succeeded, so the
// next invocation tries it first. Scope is up to the caller: one shared
// Preference gives process-wide stickiness, one per session gives
// session affinity.
type Preference struct {
	mu  sync.Mutex
	idx int
}

// NewPreference returns a Preference starting at the first credential.
func NewPreference() *Preference {
	return &Preference{}
}

// NewPreferenceAt returns a Preference seeded with a stored index, for
// restoring per-session affinity across restarts.
func NewPreferenceAt(idx int) *Preference {
	if idx < 0 {
		idx = 0
	}
	return &Preference{idx: idx}
}

func (p *Preference) get() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idx
}

func (p *Preference) set(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idx = idx
}

// Index reports the currently preferred credential index.
func (p *Preference) Index() int {
	return p.get()
}

// SetIndex stores idx as the preferred credential. Negative values
// reset to the first credential.
func (p *Preference) SetIndex(idx int) {
	if idx < 0 {
		idx = 0
	}
	p.set(idx)
}

type prefCtxKey struct{}

// WithPreference returns a context carrying a per-session credential
// preference. Generators check the context first, so one conversation
// keeps hitting the credential that last worked for it.
func WithPreference(ctx context.Context, pref *Preference) context.Context {
	return context.WithValue(ctx, prefCtxKey{}, pref)
}

// PreferenceFrom extracts the preference placed by WithPreference, or
// nil when the context carries none.
func PreferenceFrom(ctx context.Context) *Preference {
	pref, _ := ctx.Value(prefCtxKey{}).(*Preference)
	return pref
}

// Rotator tries credentials against a backend call with sticky
// last-known-good ordering. The preferred credential is tried first;
// on failure the remaining pool is tried in original order. Each
// credential is tried at most once per invocation.
type Rotator struct {
	pool   []Credential
	logger *zap.Logger
}

// NewRotator builds a rotator over the given pool.
func NewRotator(pool []Credential, logger *zap.Logger) (*Rotator, error) {
	if len(pool) == 0 {
		return nil, ErrEmptyPool
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rotator{pool: pool, logger: logger}, nil
}

// Size returns the number of credentials in the pool.
func (r *Rotator) Size() int {
	return len(r.pool)
}

// Invoke calls fn with credentials in sticky order until one succeeds.
// On success the winning index is stored in pref. If every credential
// fails, the returned error wraps both ErrCredentialsExhausted and the
// last underlying failure.
func (r *Rotator) Invoke(ctx context.Context, pref *Preference, fn func(ctx context.Context, cred Credential) error) error {
	if pref == nil {
		pref = NewPreference()
	}

	order := r.trialOrder(pref.get())
	var lastErr error
	for attempt, idx := range order {
		if err := ctx.Err(); err != nil {
			return err
		}

		cred := r.pool[idx]
		err := fn(ctx, cred)
		if err == nil {
			metrics.CredentialAttempts.WithLabelValues("success").Inc()
			if idx != pref.get() {
				r.logger.Info("Credential rotation settled on new preference",
					zap.String("label", cred.Label),
					zap.Int("index", idx),
					zap.Int("attempts", attempt+1),
				)
			}
			pref.set(idx)
			return nil
		}

		metrics.CredentialAttempts.WithLabelValues("failure").Inc()
		r.logger.Warn("Credential attempt failed",
			zap.String("label", cred.Label),
			zap.Int("index", idx),
			zap.Error(err),
		)
		lastErr = err
	}

	metrics.CredentialExhaustions.Inc()
	return fmt.Errorf("%w after %d attempts: %v", ErrCredentialsExhausted, len(order), lastErr)
}

// trialOrder is the preferred index followed by every other index in
// original pool order, never exceeding the pool size.
func (r *Rotator) trialOrder(preferred int) []int {
	if preferred < 0 || preferred >= len(r.pool) {
		preferred = 0
	}
	order := make([]int, 0, len(r.pool))
	order = append(order, preferred)
	for i := range r.pool {
		if i != preferred {
			order = append(order, i)
		}
	}
	return order
}
