package usecase

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"parlor/domain"
	"parlor/utils/log"
)

// Archiver drains turn events off the broker and writes them to the
// transcript store, keeping storage latency out of the reply path.
type Archiver struct {
	broker domain.MessageBroker
	store  domain.TranscriptStore
	done   chan struct{}
}

func NewArchiver(broker domain.MessageBroker, store domain.TranscriptStore) *Archiver {
	return &Archiver{broker: broker, store: store, done: make(chan struct{})}
}

// Run consumes turn events until the broker closes, then drains whatever is
// still buffered and returns. Call it on its own goroutine; pass a context
// that outlives the broker so final writes still land during shutdown.
func (a *Archiver) Run(ctx context.Context) error {
	events, err := a.broker.Subscribe(ctx, domain.TurnTopic, domain.TurnArchiveRoute)
	if err != nil {
		return err
	}
	defer close(a.done)

	for event := range events {
		a.archive(ctx, event)
	}
	return nil
}

// Done is closed once Run has drained and returned.
func (a *Archiver) Done() <-chan struct{} {
	return a.done
}

func (a *Archiver) archive(ctx context.Context, event domain.Event) {
	var turn domain.TurnEvent
	if err := json.Unmarshal(event.Payload, &turn); err != nil {
		log.WithCtx(ctx).Error("discarding malformed turn event", zap.Error(err))
		return
	}
	if err := a.store.RecordTurn(ctx, turn.SessionID, turn.Records...); err != nil {
		log.WithCtx(ctx).Error("transcript write failed",
			zap.String("session_id", turn.SessionID),
			zap.Error(err))
	}
}
