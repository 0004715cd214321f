package goals

import (
	"context"
	"log/slog"

	"github.com/droter/dagny-ros/internal/bus"
	"github.com/droter/dagny-ros/internal/topics"
)

// StartSync mirrors goal updates arriving from the robot into the store
// until ctx ends.
func StartSync(ctx context.Context, b bus.MessageBus, writer *WriterQueue, repo *Repo, logger *slog.Logger) {
	sub := b.Subscribe(topics.TelemetryGoalInput)
	go func() {
		defer b.Unsubscribe(sub, topics.TelemetryGoalInput)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub:
				if !ok {
					return
				}
				update, ok := msg.(topics.GoalUpdate)
				if !ok {
					continue
				}
				apply(writer, repo, update, logger)
			}
		}
	}()
}

func apply(writer *WriterQueue, repo *Repo, update topics.GoalUpdate, logger *slog.Logger) {
	switch update.Op {
	case topics.GoalOpAppend:
		lat, lon := update.Latitude, update.Longitude
		writer.Enqueue("append goal", func(ctx context.Context) error {
			_, err := repo.Append(ctx, lat, lon)
			return err
		})
	case topics.GoalOpDelete:
		id := int64(update.ID)
		writer.Enqueue("delete goal", func(ctx context.Context) error {
			return repo.Delete(ctx, id)
		})
	default:
		logger.Debug("ignoring goal update op", "op", int8(update.Op))
	}
}
