package app

import (
	"context"
	"time"

	"watchbot/internal/eventbus"
	"watchbot/internal/notifier"
	"watchbot/internal/storage"
	"watchbot/pkg/logx"
)

var eventStatus = map[string]string{
	notifier.EventSent:    storage.StatusSent,
	notifier.EventFailed:  storage.StatusFailed,
	notifier.EventDeduped: storage.StatusDeduped,
	notifier.EventDropped: storage.StatusDropped,
}

// deliveryFromEvent maps a terminal notifier event to a delivery record.
// Non-terminal events return false.
func deliveryFromEvent(e eventbus.Event) (storage.Delivery, bool) {
	status, ok := eventStatus[e.Type]
	if !ok {
		return storage.Delivery{}, false
	}
	ev, ok := e.Data.(notifier.Event)
	if !ok {
		return storage.Delivery{}, false
	}
	return storage.Delivery{
		ID:        ev.ID,
		At:        ev.At,
		Provider:  ev.Provider,
		Recipient: ev.Recipient,
		Action:    ev.Action,
		Status:    status,
		Attempts:  ev.Attempts,
		Error:     ev.Error,
		TookMS:    ev.TookMS,
		Preview:   ev.Preview,
	}, true
}

// recordDeliveries persists notifier outcomes until events closes or ctx is
// done.
func recordDeliveries(ctx context.Context, events <-chan eventbus.Event, st storage.Store, log logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			d, ok := deliveryFromEvent(e)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := st.AppendDelivery(wctx, d); err != nil {
				log.Warn("delivery record failed", logx.String("id", d.ID), logx.Err(err))
			}
			cancel()
		}
	}
}
