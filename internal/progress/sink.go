package progress

import "context"

// Sink consumes individual progress events. Implementations must be safe for
// concurrent use and should return quickly; slow sinks delay emitters.
type Sink interface {
	Consume(ctx context.Context, evt Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Broadcaster satisfies this interface
// so the engine and job tracker stay agnostic of subscriber wiring.
type Emitter interface {
	Emit(evt Event)
}

// NopEmitter discards all events.
type NopEmitter struct{}

// Emit implements Emitter.
func (NopEmitter) Emit(Event) {}
