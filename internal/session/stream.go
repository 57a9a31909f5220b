package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ai-chess-training/LLM-ChessCoach/pkg/coachdto"
)

// StreamMove runs one move submission and delivers its events in order:
// basic, then extended, then engine_move in play mode. An error event
// replaces all subsequent events. The channel closes when the submission
// is done or the context is canceled; a submission that reached its commit
// point stays committed even if the consumer is gone.
func (m *Manager) StreamMove(ctx context.Context, id, moveText string) <-chan coachdto.StreamEvent {
	out := make(chan coachdto.StreamEvent, 4)

	go func() {
		defer close(out)

		emit := func(ev coachdto.StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		sess, ok := m.registry.get(id)
		if !ok {
			emit(errorEvent(ErrSessionNotFound))
			return
		}

		sess.mu.Lock()
		defer sess.mu.Unlock()

		resp, err := m.submitLocked(ctx, sess, moveText, emit)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			emit(errorEvent(err))
			return
		}
		if !resp.Legal {
			emit(coachdto.StreamEvent{Type: coachdto.EventError, Error: resp.Error})
			return
		}

		m.logger.Debug("move stream complete",
			zap.String("session_id", id),
			zap.Bool("finished", resp.Finished),
		)
	}()

	return out
}

func errorEvent(err error) coachdto.StreamEvent {
	return coachdto.StreamEvent{Type: coachdto.EventError, Error: err.Error()}
}
