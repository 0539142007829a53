// Package notify fans deployment outcomes out to external channels.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
)

// Event describes a deployment that reached a terminal state.
type Event struct {
	Type         string                  `json:"type"`
	DeploymentID int64                   `json:"deployment_id"`
	ProjectID    int64                   `json:"project_id"`
	Status       domain.DeploymentStatus `json:"status"`
	Branch       string                  `json:"branch"`
	CommitHash   string                  `json:"commit_hash"`
	TriggeredBy  string                  `json:"triggered_by"`
	ErrorMessage string                  `json:"error_message,omitempty"`
	DurationMS   int64                   `json:"duration_ms,omitempty"`
	CompletedAt  time.Time               `json:"completed_at"`
}

// EventFromDeployment builds the outcome event of d.
func EventFromDeployment(d domain.Deployment) Event {
	ev := Event{
		Type:         "deployment",
		DeploymentID: d.ID,
		ProjectID:    d.ProjectID,
		Status:       d.Status,
		Branch:       d.Branch,
		CommitHash:   d.CommitHash,
		TriggeredBy:  d.TriggeredBy,
		ErrorMessage: d.ErrorMessage,
	}
	if d.Duration != nil {
		ev.DurationMS = d.Duration.Milliseconds()
	}
	if d.CompletedAt != nil {
		ev.CompletedAt = d.CompletedAt.UTC()
	}
	return ev
}

// Sink delivers one event to one channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Dispatcher delivers events to every sink in the background. Dispatch never
// blocks; events are dropped when the buffer is full.
type Dispatcher struct {
	sinks   []Sink
	logger  *slog.Logger
	timeout time.Duration
	events  chan Event
	wg      sync.WaitGroup
	once    sync.Once
}

// NewDispatcher starts a dispatcher over sinks.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{
		sinks:   sinks,
		logger:  logger.With("component", "notify"),
		timeout: 5 * time.Second,
		events:  make(chan Event, 256),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// Dispatch queues ev for delivery.
func (d *Dispatcher) Dispatch(ev Event) {
	defer func() {
		// Dispatch after Close is dropped.
		if recover() != nil {
			d.logger.Warn("notification dropped after close", "deployment_id", ev.DeploymentID)
		}
	}()
	select {
	case d.events <- ev:
	default:
		d.logger.Warn("notification buffer full, event dropped", "deployment_id", ev.DeploymentID)
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.events) })
	d.wg.Wait()
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for ev := range d.events {
		for _, sink := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			if err := sink.Send(ctx, ev); err != nil {
				d.logger.Warn("notification failed", "sink", sink.Name(), "deployment_id", ev.DeploymentID, "error", err)
			}
			cancel()
		}
	}
}

func encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
