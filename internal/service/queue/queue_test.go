package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/logger"
)

type fakeHandler struct {
	mu        sync.Mutex
	status    map[int64]domain.DeploymentStatus
	reasons   map[int64]string
	gates     map[int64]chan struct{}
	contexts  map[int64]context.Context
	causes    map[int64]error
	started   []int64
	active    int
	maxActive int
	hold      bool

	inProgressErr map[int64]error
	failErr       error
	cancelErr     error
}

func newFakeHandler(hold bool) *fakeHandler {
	return &fakeHandler{
		status:        make(map[int64]domain.DeploymentStatus),
		reasons:       make(map[int64]string),
		gates:         make(map[int64]chan struct{}),
		contexts:      make(map[int64]context.Context),
		causes:        make(map[int64]error),
		inProgressErr: make(map[int64]error),
		hold:          hold,
	}
}

func (h *fakeHandler) gate(id int64) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.gates[id]
	if !ok {
		g = make(chan struct{})
		h.gates[id] = g
	}
	return g
}

func (h *fakeHandler) transition(id int64, to domain.DeploymentStatus) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	from, ok := h.status[id]
	if !ok {
		from = domain.DeploymentPending
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s to %s", ErrNotWaiting, from, to)
	}
	h.status[id] = to
	return nil
}

func (h *fakeHandler) MarkQueued(_ context.Context, id int64) error {
	return h.transition(id, domain.DeploymentQueued)
}

func (h *fakeHandler) MarkInProgress(_ context.Context, id int64) error {
	h.mu.Lock()
	err := h.inProgressErr[id]
	h.mu.Unlock()
	if err != nil {
		return err
	}
	return h.transition(id, domain.DeploymentInProgress)
}

func (h *fakeHandler) MarkCancelled(_ context.Context, id int64, reason string) error {
	h.mu.Lock()
	err := h.cancelErr
	h.mu.Unlock()
	if err != nil {
		return err
	}
	return h.settle(id, domain.DeploymentCancelled, reason)
}

func (h *fakeHandler) MarkFailed(_ context.Context, id int64, reason string) error {
	h.mu.Lock()
	err := h.failErr
	h.mu.Unlock()
	if err != nil {
		return err
	}
	return h.settle(id, domain.DeploymentFailed, reason)
}

func (h *fakeHandler) settle(id int64, to domain.DeploymentStatus, reason string) error {
	if err := h.transition(id, to); err != nil {
		return err
	}
	h.mu.Lock()
	h.reasons[id] = reason
	h.mu.Unlock()
	return nil
}

func (h *fakeHandler) Run(ctx context.Context, id int64) {
	h.mu.Lock()
	h.contexts[id] = ctx
	h.started = append(h.started, id)
	h.active++
	if h.active > h.maxActive {
		h.maxActive = h.active
	}
	h.mu.Unlock()

	outcome := domain.DeploymentSuccess
	if h.hold {
		select {
		case <-h.gate(id):
		case <-ctx.Done():
			outcome = domain.DeploymentCancelled
			h.mu.Lock()
			h.causes[id] = context.Cause(ctx)
			h.mu.Unlock()
		}
	}
	_ = h.transition(id, outcome)

	h.mu.Lock()
	h.active--
	h.mu.Unlock()
}

func (h *fakeHandler) statusOf(id int64) domain.DeploymentStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status[id]
}

func (h *fakeHandler) reasonOf(id int64) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reasons[id]
}

func (h *fakeHandler) startOrder() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.started...)
}

func newTestRegistry(h Handler) *Registry {
	return NewRegistry(context.Background(), h, logger.Discard(), nil)
}

func TestSingleSlotScenario(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandler(true)
	reg := newTestRegistry(h)

	for id := int64(1); id <= 3; id++ {
		require.NoError(t, reg.Enqueue(ctx, 7, 1, id))
	}

	require.Eventually(t, func() bool { return h.statusOf(1) == domain.DeploymentInProgress }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.DeploymentQueued, h.statusOf(2))
	assert.Equal(t, domain.DeploymentQueued, h.statusOf(3))
	assert.Equal(t, 2, reg.GetQueueLength(7))
	assert.True(t, reg.IsRunning(7))

	close(h.gate(1))
	require.Eventually(t, func() bool { return h.statusOf(2) == domain.DeploymentInProgress }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.DeploymentSuccess, h.statusOf(1))

	assert.Equal(t, 1, reg.CancelPendingDeployments(ctx, 7))
	assert.Equal(t, domain.DeploymentCancelled, h.statusOf(3))
	assert.Equal(t, domain.DeploymentInProgress, h.statusOf(2))
	assert.Equal(t, 0, reg.GetQueueLength(7))

	close(h.gate(2))
	require.Eventually(t, func() bool { return !reg.IsRunning(7) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.DeploymentSuccess, h.statusOf(2))
}

func TestRunningNeverExceedsMaxConcurrent(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandler(true)
	reg := newTestRegistry(h)

	const total = 40
	var wg sync.WaitGroup
	for id := int64(1); id <= total; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, reg.Enqueue(ctx, 1, 3, id))
		}(id)
	}
	wg.Wait()

	status := reg.GetQueueStatus(1)
	assert.Equal(t, 3, status.Running)
	assert.Equal(t, total-3, status.QueueLength)

	for id := int64(1); id <= total; id++ {
		close(h.gate(id))
	}
	require.Eventually(t, func() bool { return len(h.startOrder()) == total && !reg.IsRunning(1) }, 2*time.Second, 5*time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.LessOrEqual(t, h.maxActive, 3)
}

func TestAdmissionIsFIFO(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandler(false)
	reg := newTestRegistry(h)

	for id := int64(1); id <= 10; id++ {
		require.NoError(t, reg.Enqueue(ctx, 2, 1, id))
	}
	require.Eventually(t, func() bool { return len(h.startOrder()) == 10 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, h.startOrder())
}

func TestEnqueueTrackedIDIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandler(true)
	reg := newTestRegistry(h)

	require.NoError(t, reg.Enqueue(ctx, 1, 1, 1))
	require.NoError(t, reg.Enqueue(ctx, 1, 1, 2))
	require.NoError(t, reg.Enqueue(ctx, 1, 1, 2))
	require.NoError(t, reg.Enqueue(ctx, 1, 1, 1))

	assert.Equal(t, 1, reg.GetQueueLength(1))
	close(h.gate(1))
	close(h.gate(2))
}

func TestCancelQueuedAndRunning(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandler(true)
	reg := newTestRegistry(h)

	require.NoError(t, reg.Enqueue(ctx, 3, 1, 1))
	require.NoError(t, reg.Enqueue(ctx, 3, 1, 2))

	outcome, done, err := reg.Cancel(ctx, 3, 2, "")
	require.NoError(t, err)
	assert.Equal(t, CancelledQueued, outcome)
	assert.Nil(t, done)
	assert.Equal(t, domain.DeploymentCancelled, h.statusOf(2))
	assert.Equal(t, ReasonCancelledByUser, h.reasonOf(2))

	outcome, done, err = reg.Cancel(ctx, 3, 1, "cancelled by alice")
	require.NoError(t, err)
	assert.Equal(t, SignalledRunning, outcome)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("running job did not finish after cancellation")
	}
	assert.Equal(t, domain.DeploymentCancelled, h.statusOf(1))
	h.mu.Lock()
	cause := h.causes[1]
	h.mu.Unlock()
	var c *Cancellation
	require.ErrorAs(t, cause, &c)
	assert.Equal(t, "cancelled by alice", c.Reason)

	outcome, _, err = reg.Cancel(ctx, 3, 99, "")
	require.NoError(t, err)
	assert.Equal(t, NotTracked, outcome)

	outcome, _, err = reg.Cancel(ctx, 404, 1, "")
	require.NoError(t, err)
	assert.Equal(t, NotTracked, outcome)
}

func TestRefreshAdmitsWaitingDeployments(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandler(true)
	reg := newTestRegistry(h)

	for id := int64(1); id <= 3; id++ {
		require.NoError(t, reg.Enqueue(ctx, 4, 1, id))
	}
	status := reg.Refresh(4, 3)
	assert.Equal(t, 3, status.MaxConcurrent)
	assert.Equal(t, 3, status.Running)
	assert.Equal(t, []int64{1, 2, 3}, status.Active)
	assert.Empty(t, status.Pending)

	for id := int64(1); id <= 3; id++ {
		close(h.gate(id))
	}
}

func TestQueueCreatedOnceKeepsInitialCapacity(t *testing.T) {
	reg := newTestRegistry(newFakeHandler(false))
	first := reg.Queue(9, 2)
	second := reg.Queue(9, 5)
	assert.Same(t, first, second)
	assert.Equal(t, 2, second.Status().MaxConcurrent)
	assert.Equal(t, 1, reg.Queue(10, 0).Status().MaxConcurrent)
}

func TestStatusForUnknownProject(t *testing.T) {
	reg := newTestRegistry(newFakeHandler(false))
	assert.Empty(t, reg.GetAllQueuesStatus())
	assert.Equal(t, 0, reg.GetQueueLength(1))
	assert.False(t, reg.IsRunning(1))
	assert.Equal(t, 0, reg.CancelPendingDeployments(context.Background(), 1))
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name, projectID string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "project_id" && label.GetValue() == projectID {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	return -1
}

func TestQueueGauges(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandler(true)
	promReg := prometheus.NewRegistry()
	reg := NewRegistry(context.Background(), h, logger.Discard(), promReg)

	require.NoError(t, reg.Enqueue(ctx, 5, 1, 1))
	require.NoError(t, reg.Enqueue(ctx, 5, 1, 2))

	assert.Equal(t, float64(1), gaugeValue(t, promReg, "deploy_center_queue_pending_deployments", "5"))
	assert.Equal(t, float64(1), gaugeValue(t, promReg, "deploy_center_queue_running_deployments", "5"))

	close(h.gate(1))
	close(h.gate(2))
	require.Eventually(t, func() bool {
		return gaugeValue(t, promReg, "deploy_center_queue_running_deployments", "5") == 0
	}, time.Second, 5*time.Millisecond)
}

type ctxKey string

func TestJobContextsDeriveFromBase(t *testing.T) {
	base := context.WithValue(context.Background(), ctxKey("scope"), "server")
	h := newFakeHandler(false)
	reg := NewRegistry(base, h, logger.Discard(), nil)

	const total = 50
	caller := context.WithValue(context.Background(), ctxKey("request"), "req-1")
	for id := int64(1); id <= total; id++ {
		require.NoError(t, reg.Enqueue(caller, 6, 1, id))
	}
	require.Eventually(t, func() bool { return len(h.startOrder()) == total && !reg.IsRunning(6) }, 2*time.Second, 5*time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range []int64{1, total / 2, total} {
		ctx := h.contexts[id]
		require.NotNil(t, ctx)
		assert.Equal(t, "server", ctx.Value(ctxKey("scope")))
		assert.Nil(t, ctx.Value(ctxKey("request")), "deployment %d kept the caller context", id)
		assert.Equal(t, 1, strings.Count(fmt.Sprint(ctx), "WithCancel"), "deployment %d context nests earlier jobs", id)
	}
}

func TestAdmissionFailureFailsDeployment(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandler(false)
	h.inProgressErr[1] = errors.New("database unavailable")
	reg := newTestRegistry(h)

	require.NoError(t, reg.Enqueue(ctx, 8, 1, 1))
	require.NoError(t, reg.Enqueue(ctx, 8, 1, 2))

	assert.Equal(t, domain.DeploymentFailed, h.statusOf(1))
	assert.Contains(t, h.reasonOf(1), "database unavailable")
	require.Eventually(t, func() bool { return h.statusOf(2) == domain.DeploymentSuccess }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{2}, h.startOrder())
}

func TestAdmissionStallsWhenFailureCannotBeRecorded(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandler(false)
	h.inProgressErr[1] = errors.New("database unavailable")
	h.failErr = errors.New("database unavailable")
	reg := newTestRegistry(h)

	require.NoError(t, reg.Enqueue(ctx, 8, 1, 1))
	require.NoError(t, reg.Enqueue(ctx, 8, 1, 2))
	status := reg.GetQueueStatus(8)
	assert.Equal(t, []int64{1, 2}, status.Pending)
	assert.Equal(t, domain.DeploymentQueued, h.statusOf(1))

	h.mu.Lock()
	delete(h.inProgressErr, 1)
	h.failErr = nil
	h.mu.Unlock()
	reg.Queue(8, 1).TryAdmitNext()
	require.Eventually(t, func() bool { return len(h.startOrder()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{1, 2}, h.startOrder())
}

func TestStaleEntryIsDropped(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandler(false)
	h.inProgressErr[1] = fmt.Errorf("%w: already cancelled", ErrNotWaiting)
	reg := newTestRegistry(h)

	require.NoError(t, reg.Enqueue(ctx, 8, 1, 1))
	assert.Equal(t, domain.DeploymentQueued, h.statusOf(1))
	assert.Empty(t, h.reasonOf(1))
	assert.Equal(t, 0, reg.GetQueueLength(8))
}

func TestCancelPendingKeepsEntriesThatFailToPersist(t *testing.T) {
	ctx := context.Background()
	h := newFakeHandler(true)
	reg := newTestRegistry(h)
	for id := int64(1); id <= 3; id++ {
		require.NoError(t, reg.Enqueue(ctx, 9, 1, id))
	}

	h.mu.Lock()
	h.cancelErr = errors.New("database unavailable")
	h.mu.Unlock()
	assert.Equal(t, 0, reg.CancelPendingDeployments(ctx, 9))
	assert.Equal(t, []int64{2, 3}, reg.GetQueueStatus(9).Pending)

	h.mu.Lock()
	h.cancelErr = nil
	h.mu.Unlock()
	assert.Equal(t, 2, reg.CancelPendingDeployments(ctx, 9))
	assert.Equal(t, domain.DeploymentCancelled, h.statusOf(3))
	close(h.gate(1))
}
