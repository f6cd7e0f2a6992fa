package handler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dirlistener/dirlistener/pkg/entry"
)

type recordingHandler struct {
	mu          sync.Mutex
	handled     int
	initialized int
	prerun      int
	postrun     int
	cleaned     int
	data        map[string]string
	panicOn     int32 // if > 0, Handle panics on every call
}

func (h *recordingHandler) Handle(ctx context.Context, dn entry.DN, newEntry, oldEntry *entry.Entry, command string) error {
	if atomic.LoadInt32(&h.panicOn) != 0 {
		panic("boom")
	}
	h.mu.Lock()
	h.handled++
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) Initialize() error {
	h.mu.Lock()
	h.initialized++
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) Prerun() error {
	h.mu.Lock()
	h.prerun++
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) Postrun() error {
	h.mu.Lock()
	h.postrun++
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) Clean() error {
	h.mu.Lock()
	h.cleaned++
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) SetData(key, value string) error {
	h.mu.Lock()
	if h.data == nil {
		h.data = make(map[string]string)
	}
	h.data[key] = value
	h.mu.Unlock()
	return nil
}

func newTestStateStore(t *testing.T) *StateStore {
	t.Helper()
	s, err := OpenStateStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestRuntimeOrdersReplicationFirstThenPriority(t *testing.T) {
	mods := []*Module{
		{Manifest: Manifest{Name: "low-priority", Priority: 10}, Impl: &recordingHandler{}},
		{Manifest: Manifest{Name: "replication"}, Impl: &recordingHandler{}},
		{Manifest: Manifest{Name: "high-priority", Priority: 1}, Impl: &recordingHandler{}},
	}

	rt := NewRuntime(mods, newTestStateStore(t), RuntimeOptions{})
	ordered := rt.Modules()
	require.Len(t, ordered, 3)
	require.Equal(t, "replication", ordered[0].Name)
	require.Equal(t, "high-priority", ordered[1].Name)
	require.Equal(t, "low-priority", ordered[2].Name)
}

func TestRuntimeInitializeRunsOnceAndPersists(t *testing.T) {
	h := &recordingHandler{}
	mods := []*Module{{Manifest: Manifest{Name: "sync"}, Impl: h}}
	state := newTestStateStore(t)

	rt := NewRuntime(mods, state, RuntimeOptions{})
	rt.Initialize()
	rt.Initialize()
	require.Equal(t, 1, h.initialized)

	ready, err := state.IsReady("sync")
	require.NoError(t, err)
	require.True(t, ready)
}

func TestRuntimeEnsurePrerunOncePerRun(t *testing.T) {
	h := &recordingHandler{}
	mods := []*Module{{Manifest: Manifest{Name: "sync"}, Impl: h}}
	rt := NewRuntime(mods, newTestStateStore(t), RuntimeOptions{})

	require.NoError(t, rt.EnsurePrerun("sync"))
	require.NoError(t, rt.EnsurePrerun("sync"))
	require.Equal(t, 1, h.prerun)

	rt.Postrun()
	require.Equal(t, 1, h.postrun)

	require.NoError(t, rt.EnsurePrerun("sync"))
	require.Equal(t, 2, h.prerun)
}

func TestRuntimeInvokeAndSetDataAndClean(t *testing.T) {
	h := &recordingHandler{}
	mods := []*Module{{Manifest: Manifest{Name: "sync"}, Impl: h}}
	rt := NewRuntime(mods, newTestStateStore(t), RuntimeOptions{})

	dn := entry.NormalizeDN("uid=jdoe,dc=example,dc=com")
	require.NoError(t, rt.Invoke(context.Background(), "sync", dn, nil, nil, "add"))
	require.Equal(t, 1, h.handled)

	rt.SetData("key", "value")
	require.Equal(t, "value", h.data["key"])

	rt.Clean()
	require.Equal(t, 1, h.cleaned)
}

func TestRuntimeInvokeUnknownHandler(t *testing.T) {
	rt := NewRuntime(nil, newTestStateStore(t), RuntimeOptions{})
	err := rt.Invoke(context.Background(), "nope", entry.DN(""), nil, nil, "add")
	require.Error(t, err)
}

func TestRuntimeInvokeRecoversPanic(t *testing.T) {
	h := &recordingHandler{}
	atomic.StoreInt32(&h.panicOn, 1)
	mods := []*Module{{Manifest: Manifest{Name: "flaky"}, Impl: h}}
	rt := NewRuntime(mods, newTestStateStore(t), RuntimeOptions{})

	dn := entry.NormalizeDN("uid=jdoe,dc=example,dc=com")
	err := rt.Invoke(context.Background(), "flaky", dn, nil, nil, "add")
	require.Error(t, err)
}

func TestRuntimeEscalatesRepeatedPanics(t *testing.T) {
	h := &recordingHandler{}
	atomic.StoreInt32(&h.panicOn, 1)
	mods := []*Module{{Manifest: Manifest{Name: "flaky"}, Impl: h}}

	var escalated int32
	rt := NewRuntime(mods, newTestStateStore(t), RuntimeOptions{
		PanicThreshold: 2,
		PanicWindow:    time.Minute,
		OnRepeatedPanic: func(name string) {
			atomic.AddInt32(&escalated, 1)
		},
	})

	dn := entry.NormalizeDN("uid=jdoe,dc=example,dc=com")
	_ = rt.Invoke(context.Background(), "flaky", dn, nil, nil, "add")
	require.Zero(t, atomic.LoadInt32(&escalated))
	_ = rt.Invoke(context.Background(), "flaky", dn, nil, nil, "add")
	require.Equal(t, int32(1), atomic.LoadInt32(&escalated))
}

func TestRuntimeNotifyRemovedRespectsOption(t *testing.T) {
	h := &filterLossHandler{}
	mods := []*Module{{Manifest: Manifest{Name: "sync"}, Impl: h}}
	dn := entry.NormalizeDN("uid=jdoe,dc=example,dc=com")

	rtOff := NewRuntime(mods, newTestStateStore(t), RuntimeOptions{NotifyOnFilterLoss: false})
	rtOff.NotifyRemoved("sync", dn)
	require.Zero(t, h.removed)

	rtOn := NewRuntime(mods, newTestStateStore(t), RuntimeOptions{NotifyOnFilterLoss: true})
	rtOn.NotifyRemoved("sync", dn)
	require.Equal(t, 1, h.removed)
}

type filterLossHandler struct {
	recordingHandler
	removed int
}

func (h *filterLossHandler) OnRemoved(dn entry.DN) error {
	h.removed++
	return nil
}
