package application

import "github.com/shopspring/decimal"

// Event is the structured record the engine emits once per operation. The
// sink is an external subscriber (logging, persistence); nothing in the
// transaction path depends on what it does.
type Event struct {
	Action   string
	User     string
	Currency string
	Amount   decimal.Decimal
	Status   string
	Error    string
}

type EventSink interface {
	Emit(e Event)
}

type NoopSink struct{}

func (NoopSink) Emit(Event) {}
