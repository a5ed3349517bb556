package outbox

import (
	"context"
	"time"

	"github.com/mcdev12/brainstorm/go/internal/session/events"
	"github.com/rs/zerolog/log"
)

// Recorder is an events.Sink that writes durable events to the outbox off
// the coordinator's goroutine. Writes are best effort: a failed insert is
// logged and the live session carries on.
type Recorder struct {
	app     *App
	queue   chan events.Event
	timeout time.Duration
}

func NewRecorder(app *App, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{
		app:     app,
		queue:   make(chan events.Event, buffer),
		timeout: 5 * time.Second,
	}
}

// Publish queues event if it is durable. It never blocks.
func (r *Recorder) Publish(event events.Event) {
	if !event.Type.Durable() {
		return
	}
	select {
	case r.queue <- event:
	default:
		log.Warn().
			Str("session_id", event.SessionID.String()).
			Str("event_type", string(event.Type)).
			Msg("outbox queue full, dropping event")
	}
}

// Start writes queued events until ctx is done, then drains what is left.
func (r *Recorder) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case event := <-r.queue:
					r.record(event)
				default:
					return
				}
			}
		case event := <-r.queue:
			r.record(event)
		}
	}
}

func (r *Recorder) record(event events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.app.Record(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("session_id", event.SessionID.String()).
			Str("event_type", string(event.Type)).
			Msg("failed to record outbox event")
	}
}
