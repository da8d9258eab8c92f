package partition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"device-ingest/internal/device"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

const (
	deviceA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	deviceB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// countingBackend records EnsureTable calls per table name.
type countingBackend struct {
	mu     sync.Mutex
	calls  map[string]int
	models map[string]any
	delay  time.Duration
	err    error
}

func newCountingBackend() *countingBackend {
	return &countingBackend{calls: make(map[string]int), models: make(map[string]any)}
}

func (b *countingBackend) EnsureTable(_ context.Context, name string, model any) error {
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[name]++
	if b.err != nil {
		return b.err
	}
	b.models[name] = model
	return nil
}

func (b *countingBackend) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

func TestTableName(t *testing.T) {
	assert.Equal(t, deviceA+"_sms", TableName(deviceA, SMS))
	assert.Equal(t, deviceA+"_callLogs", TableName(deviceA, CallLogs))
	assert.NotEqual(t, TableName(deviceA, SMS), TableName(deviceB, SMS))
}

func TestManager_PartitionFor_Idempotent(t *testing.T) {
	backend := newCountingBackend()
	m := NewManager(backend, slog.Default())
	ctx := context.Background()

	p1, err := m.PartitionFor(ctx, deviceA, SMS)
	require.NoError(t, err)
	p2, err := m.PartitionFor(ctx, deviceA, SMS)
	require.NoError(t, err)

	assert.Same(t, p1, p2)
	assert.Equal(t, deviceA+"_sms", p1.Name)
	assert.Equal(t, []string{"address", "type", "body", "timestamp"}, p1.Schema.FieldNames())
	assert.Equal(t, 1, backend.count(p1.Name))
	assert.Equal(t, 1, m.Len())
}

func TestManager_PartitionFor_SeparatesDevicesAndCategories(t *testing.T) {
	backend := newCountingBackend()
	m := NewManager(backend, slog.Default())
	ctx := context.Background()

	a, err := m.PartitionFor(ctx, deviceA, SMS)
	require.NoError(t, err)
	b, err := m.PartitionFor(ctx, deviceB, SMS)
	require.NoError(t, err)
	c, err := m.PartitionFor(ctx, deviceA, Contacts)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 3, m.Len())
}

func TestManager_PartitionFor_ConcurrentCreatesOnce(t *testing.T) {
	backend := newCountingBackend()
	backend.delay = 10 * time.Millisecond
	m := NewManager(backend, slog.Default())

	const workers = 64
	results := make([]*Partition, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := m.PartitionFor(context.Background(), deviceA, Keylogs)
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, backend.count(TableName(deviceA, Keylogs)))
	for _, p := range results {
		assert.Same(t, results[0], p)
	}
}

func TestManager_PartitionFor_Errors(t *testing.T) {
	backend := newCountingBackend()
	m := NewManager(backend, slog.Default())
	ctx := context.Background()

	_, err := m.PartitionFor(ctx, deviceA, "photos")
	assert.ErrorIs(t, err, ErrUnknownCategory)

	_, err = m.PartitionFor(ctx, "../../etc", SMS)
	assert.ErrorIs(t, err, device.ErrInvalidIdentity)

	assert.Equal(t, 0, m.Len())
}

func TestManager_PartitionFor_BackendFailureIsRetried(t *testing.T) {
	backend := newCountingBackend()
	backend.err = errors.New("connection reset")
	m := NewManager(backend, slog.Default())
	ctx := context.Background()

	_, err := m.PartitionFor(ctx, deviceA, SMS)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 0, m.Len())

	backend.mu.Lock()
	backend.err = nil
	backend.mu.Unlock()

	p, err := m.PartitionFor(ctx, deviceA, SMS)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.count(p.Name))
	assert.IsType(t, p.Schema.Model(), backend.models[p.Name])
}

// gatedBackend blocks EnsureTable until released, honouring its context.
type gatedBackend struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	calls   int
}

func (b *gatedBackend) EnsureTable(ctx context.Context, _ string, _ any) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.once.Do(func() { close(b.started) })

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.release:
		return nil
	}
}

func TestManager_PartitionFor_CancelledCallerDoesNotFailOthers(t *testing.T) {
	backend := &gatedBackend{started: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(backend, slog.Default())

	ctx1, cancel1 := context.WithCancel(context.Background())
	err1 := make(chan error, 1)
	go func() {
		_, err := m.PartitionFor(ctx1, deviceA, SMS)
		err1 <- err
	}()
	<-backend.started

	type result struct {
		p   *Partition
		err error
	}
	res2 := make(chan result, 1)
	go func() {
		p, err := m.PartitionFor(context.Background(), deviceA, SMS)
		res2 <- result{p, err}
	}()

	cancel1()
	select {
	case err := <-err1:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting for the shared creation")
	}

	close(backend.release)
	select {
	case r := <-res2:
		require.NoError(t, r.err)
		assert.Equal(t, deviceA+"_sms", r.p.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never received the partition")
	}

	backend.mu.Lock()
	assert.Equal(t, 1, backend.calls)
	backend.mu.Unlock()
	assert.Equal(t, 1, m.Len())
}
