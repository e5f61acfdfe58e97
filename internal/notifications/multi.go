package notifications

import (
	"context"

	"github.com/kjannette/trahn-swap/internal/models"
)

// SwapNotifier is told about every terminal attempt.
type SwapNotifier interface {
	SwapFinished(ctx context.Context, ev models.SwapEvent)
}

// Multi fans an event out to every notifier in order.
type Multi []SwapNotifier

func (m Multi) SwapFinished(ctx context.Context, ev models.SwapEvent) {
	for _, n := range m {
		n.SwapFinished(ctx, ev)
	}
}
