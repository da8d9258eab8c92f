// Package partition routes each device's records into an isolated table per
// category. Tables are named "{identity}_{category}" and are created lazily,
// exactly once, on first use.
package partition

import (
	"context"
	"fmt"
	"sync"

	"device-ingest/internal/device"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/singleflight"
)

// Backend creates the storage target for a partition. EnsureTable must be
// safe to call for a table that already exists.
type Backend interface {
	EnsureTable(ctx context.Context, name string, model any) error
}

// Partition is a handle to one device's table for one category. Handles are
// shared: every lookup of the same key returns the same pointer.
type Partition struct {
	Name     string
	Identity string
	Category Category
	Schema   Schema
}

// TableName is the deterministic storage name for (identity, category).
func TableName(identity string, c Category) string {
	return identity + "_" + string(c)
}

type Manager struct {
	backend Backend
	log     *slog.Logger

	mu    sync.RWMutex
	parts map[string]*Partition
	group singleflight.Group
}

func NewManager(backend Backend, log *slog.Logger) *Manager {
	return &Manager{
		backend: backend,
		log:     log.With("component", "partition_manager"),
		parts:   make(map[string]*Partition),
	}
}

func (m *Manager) cached(name string) *Partition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parts[name]
}

// PartitionFor resolves the partition for (identity, category), creating
// its table on first use. Concurrent first callers share one creation.
func (m *Manager) PartitionFor(ctx context.Context, identity string, c Category) (*Partition, error) {
	if !device.ValidIdentity(identity) {
		return nil, device.ErrInvalidIdentity
	}
	schema, err := SchemaFor(c)
	if err != nil {
		return nil, err
	}

	name := TableName(identity, c)
	if p := m.cached(name); p != nil {
		return p, nil
	}

	// The table is created on a context detached from this caller, so a
	// cancelled request never fails other callers sharing the flight.
	ch := m.group.DoChan(name, func() (any, error) {
		// a previous flight may have finished between the lookup and DoChan
		if p := m.cached(name); p != nil {
			return p, nil
		}
		if err := m.backend.EnsureTable(context.WithoutCancel(ctx), name, schema.Model()); err != nil {
			return nil, fmt.Errorf("creating partition %s: %w", name, err)
		}

		p := &Partition{Name: name, Identity: identity, Category: c, Schema: schema}
		m.mu.Lock()
		m.parts[name] = p
		m.mu.Unlock()

		m.log.Debug("partition ready", "partition", name)
		return p, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Partition), nil
	}
}

// Len returns the number of partitions resolved so far.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.parts)
}
