package device

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/exp/slog"
)

var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrDuplicateIdentity = errors.New("device identity already registered")
	ErrInvalidIdentity   = errors.New("invalid device identity")
)

// entry guards a single device record. Requests for different devices never
// share a lock beyond the brief map lookup.
type entry struct {
	mu  sync.Mutex
	rec Record
}

// Registry is the authoritative in-memory set of known devices.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*entry

	hasher       Hasher
	now          func() time.Time
	autoRegister bool
	log          *slog.Logger
}

type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithHasher overrides the credential hasher.
func WithHasher(h Hasher) Option {
	return func(r *Registry) { r.hasher = h }
}

// WithAutoRegister controls whether Validate trusts the first credential seen
// for an unknown identity. Enabled by default.
func WithAutoRegister(enabled bool) Option {
	return func(r *Registry) { r.autoRegister = enabled }
}

func NewRegistry(log *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		devices:      make(map[string]*entry),
		hasher:       SHA256Hasher{},
		now:          time.Now,
		autoRegister: true,
		log:          log.With("component", "device_registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) lookup(identity string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices[identity]
}

// insert stores a fresh record unless one already exists. The returned bool
// is true only for the caller that created the entry.
func (r *Registry) insert(identity, credential string, meta Metadata) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.devices[identity]; ok {
		return e, false
	}

	now := r.now()
	e := &entry{rec: Record{
		Identity:         identity,
		CredentialDigest: r.hasher.Digest(credential),
		RegisteredAt:     now,
		LastSeen:         now,
		Metadata:         meta,
	}}
	r.devices[identity] = e
	return e, true
}

// Validate checks credential against the stored digest for identity.
//
// An unknown identity is registered with the presented credential and
// accepted (unless auto-registration is disabled). lastSeen is refreshed on
// every call for a known device, whether or not the credential matches.
func (r *Registry) Validate(identity, credential string) bool {
	e := r.lookup(identity)
	if e == nil {
		if !r.autoRegister {
			return false
		}
		var created bool
		e, created = r.insert(identity, credential, Metadata{})
		if created {
			r.log.Info("device auto-registered", "device_id", identity)
			return true
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	r.touchLocked(e)
	return r.hasher.Matches(credential, e.rec.CredentialDigest)
}

// Register explicitly adds a device. It never overwrites an existing record.
func (r *Registry) Register(identity, credential string, meta Metadata) (Record, error) {
	if !ValidIdentity(identity) {
		return Record{}, ErrInvalidIdentity
	}
	e, created := r.insert(identity, credential, meta)
	if !created {
		return Record{}, ErrDuplicateIdentity
	}
	r.log.Info("device registered", "device_id", identity)

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec, nil
}

// Touch refreshes lastSeen for a known device. Unknown identities are ignored.
func (r *Registry) Touch(identity string) {
	e := r.lookup(identity)
	if e == nil {
		return
	}
	e.mu.Lock()
	r.touchLocked(e)
	e.mu.Unlock()
}

// touchLocked advances lastSeen; it never moves it backwards.
func (r *Registry) touchLocked(e *entry) {
	if now := r.now(); now.After(e.rec.LastSeen) {
		e.rec.LastSeen = now
	}
}

// Stats returns the current statistics for identity.
func (r *Registry) Stats(identity string) (Stats, error) {
	e := r.lookup(identity)
	if e == nil {
		return Stats{}, ErrDeviceNotFound
	}
	e.mu.Lock()
	rec := e.rec
	e.mu.Unlock()
	return rec.stats(r.now()), nil
}

// ListAll returns a snapshot of every known device in no particular order.
func (r *Registry) ListAll() []Stats {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.devices))
	for _, e := range r.devices {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	now := r.now()
	out := make([]Stats, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		rec := e.rec
		e.mu.Unlock()
		out = append(out, rec.stats(now))
	}
	return out
}

// RecordUpload increments the upload counter. Unknown identities are ignored.
func (r *Registry) RecordUpload(identity string) {
	e := r.lookup(identity)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.rec.UploadCount++
	e.mu.Unlock()
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
