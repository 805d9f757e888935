// Package notify carries transition events to external sinks. Delivery is
// fire-and-forget: a sink failure is logged, never propagated, and never
// rolls back a committed transition.
package notify

import (
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Event describes one successful lifecycle event.
type Event struct {
	Event      string    `json:"event"`
	RecordID   string    `json:"record_id"`
	DraftID    string    `json:"draft_id,omitempty"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ActorID    string    `json:"actor_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sink receives events. Implementations must not block for long; the
// publisher already runs off the commit path.
type Sink interface {
	Publish(event Event) error
}

// LogSink writes events to the structured log. The default sink when no
// external notification service is configured.
type LogSink struct {
	logger cmtlog.Logger
}

func NewLogSink(logger cmtlog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(event Event) error {
	s.logger.Info("Lifecycle event",
		"event", event.Event,
		"record", event.RecordID,
		"from", event.FromStatus,
		"to", event.ToStatus,
		"actor", event.ActorID,
	)
	return nil
}

// Publisher fans an event out to its sinks on a separate goroutine.
type Publisher struct {
	sinks  []Sink
	logger cmtlog.Logger
}

func NewPublisher(logger cmtlog.Logger, sinks ...Sink) *Publisher {
	return &Publisher{sinks: sinks, logger: logger}
}

// Publish delivers asynchronously; errors are logged and dropped.
func (p *Publisher) Publish(event Event) {
	go func() {
		for _, sink := range p.sinks {
			if err := sink.Publish(event); err != nil {
				p.logger.Error("Notification delivery failed", "event", event.Event, "err", err)
			}
		}
	}()
}
