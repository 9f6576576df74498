package scenario

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/netsentry/conductor/pkg/config"
	"github.com/netsentry/conductor/pkg/sse"
	"github.com/netsentry/conductor/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvisioner struct {
	mu       sync.Mutex
	calls    int
	block    chan struct{}
	returnOn error
}

func (f *fakeProvisioner) Provision(ctx context.Context, scenarioName string, progress func(step, detail string, pct int)) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	progress("provisioning", scenarioName, 50)
	if f.block != nil {
		<-f.block
	}
	return f.returnOn
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"net-outage", false},
		{"ab", false},
		{"a1b2c3d4e5a1b2c3d4e5a1b2c3d4e5a1b2c3d4e5a1b2c3d4e5", false}, // 50 chars
		{"a", true},
		{"a--b", true},
		{"UPPERCASE", true},
		{"-leading-hyphen", true},
		{"trailing-hyphen-", true},
		{"net-outage-topology", true},
		{"net-outage-telemetry", true},
		{"net-outage-prompts", true},
	}
	for _, tt := range tests {
		err := ValidateName(tt.name)
		if tt.wantErr {
			assert.Error(t, err, tt.name)
		} else {
			assert.NoError(t, err, tt.name)
		}
	}
}

func TestRegistry_SaveThenGetRoundTrips(t *testing.T) {
	r := NewRegistry(store.NewMemory(), nil, nil)
	ctx := context.Background()

	saved, err := r.SaveScenario(ctx, "net-outage", "Network Outage", "desc")
	require.NoError(t, err)
	assert.Equal(t, "net-outage-topology", saved.Resources.Graph)

	got, err := r.GetScenario(ctx, "net-outage")
	require.NoError(t, err)
	assert.Equal(t, "Network Outage", got.DisplayName)
}

func TestRegistry_SaveRejectsInvalidName(t *testing.T) {
	r := NewRegistry(store.NewMemory(), nil, nil)
	_, err := r.SaveScenario(context.Background(), "Bad Name!", "x", "")
	assert.Error(t, err)
}

func TestRegistry_SaveIsUpsertPreservingCreatedAt(t *testing.T) {
	r := NewRegistry(store.NewMemory(), nil, nil)
	ctx := context.Background()

	first, err := r.SaveScenario(ctx, "net-outage", "v1", "")
	require.NoError(t, err)

	second, err := r.SaveScenario(ctx, "net-outage", "v2", "")
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, "v2", second.DisplayName)
}

func TestRegistry_ListSortedByUpdatedAtDescending(t *testing.T) {
	r := NewRegistry(store.NewMemory(), nil, nil)
	ctx := context.Background()

	_, err := r.SaveScenario(ctx, "first", "First", "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = r.SaveScenario(ctx, "second", "Second", "")
	require.NoError(t, err)

	list, err := r.ListScenarios(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Name)
	assert.Equal(t, "first", list[1].Name)
}

func TestRegistry_DeleteRemovesRegistryRecordOnly(t *testing.T) {
	r := NewRegistry(store.NewMemory(), nil, nil)
	ctx := context.Background()
	_, err := r.SaveScenario(ctx, "net-outage", "x", "")
	require.NoError(t, err)

	require.NoError(t, r.DeleteScenario(ctx, "net-outage"))
	_, err = r.GetScenario(ctx, "net-outage")
	assert.Error(t, err)
}

func TestRegistry_RecordUploadUpdatesStatusMap(t *testing.T) {
	r := NewRegistry(store.NewMemory(), nil, nil)
	ctx := context.Background()
	_, err := r.SaveScenario(ctx, "net-outage", "x", "")
	require.NoError(t, err)

	require.NoError(t, r.RecordUpload(ctx, "net-outage", config.UploadKindGraph, config.UploadStatus{Status: "complete"}))

	got, err := r.GetScenario(ctx, "net-outage")
	require.NoError(t, err)
	assert.Equal(t, "complete", got.UploadStatus[config.UploadKindGraph].Status)
}

func TestRegistry_ActivateScenarioCallsProvisionerAndEmitsEvents(t *testing.T) {
	hub := sse.NewHub(16, 16)
	prov := &fakeProvisioner{}
	r := NewRegistry(store.NewMemory(), prov, hub)
	ctx := context.Background()
	_, err := r.SaveScenario(ctx, "net-outage", "x", "")
	require.NoError(t, err)

	sub := hub.Subscribe(nil)
	defer sub.Close()

	require.NoError(t, r.ActivateScenario(ctx, "net-outage"))
	assert.Equal(t, 1, prov.calls)

	var sawComplete bool
	for i := 0; i < 3; i++ {
		select {
		case ev := <-sub.Events():
			if ev.Kind == sse.KindComplete {
				sawComplete = true
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for activation events")
		}
	}
	assert.True(t, sawComplete)
}

func TestRegistry_ActivateScenarioUnknownNameErrors(t *testing.T) {
	r := NewRegistry(store.NewMemory(), &fakeProvisioner{}, nil)
	err := r.ActivateScenario(context.Background(), "nope")
	assert.Error(t, err)
}

func TestRegistry_ActivateScenarioRejectsConcurrentActivation(t *testing.T) {
	block := make(chan struct{})
	prov := &fakeProvisioner{block: block}
	r := NewRegistry(store.NewMemory(), prov, nil)
	ctx := context.Background()
	_, err := r.SaveScenario(ctx, "net-outage", "x", "")
	require.NoError(t, err)
	_, err = r.SaveScenario(ctx, "other", "x", "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.ActivateScenario(ctx, "net-outage") }()

	// Give the first activation time to acquire busy before the second starts.
	time.Sleep(20 * time.Millisecond)
	err = r.ActivateScenario(ctx, "other")
	assert.ErrorIs(t, err, ErrActivationBusy)

	close(block)
	require.NoError(t, <-done)
}
