package orchestrator

import (
	"context"
	"errors"

	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// HandleCommand обрабатывает команду управления pipeline из очереди.
// Логгер сообщения берётся из ctx (его кладёт mq.Consumer).
//
// Отклонённые команды (run уже активен, reset во время run) подтверждаются
// и логируются с причиной: повторная доставка их не исправит.
func (c *Controller) HandleCommand(ctx context.Context, delivery *mq.Delivery) error {
	msg := &delivery.Message
	logger := telemetry.FromContext(ctx)

	switch msg.Type {
	case mq.MessageTypePipelineStart:
		cmd, err := mq.ParsePayload[mq.StartCommand](msg)
		if err != nil {
			logger.Error("failed to parse pipeline.start payload", "error", err)
			return nil
		}
		if err := c.Start(ctx, cmd.Payload); err != nil {
			if errors.Is(err, ErrPrecondition) {
				logger.Warn("pipeline.start rejected", "reason", err)
				return nil
			}
			return err
		}
		logger.Info("pipeline.start accepted")
		return nil

	case mq.MessageTypePipelineReset:
		if err := c.Reset(); err != nil {
			logger.Warn("pipeline.reset rejected", "reason", err)
			return nil
		}
		logger.Info("pipeline.reset accepted")
		return nil

	default:
		logger.Warn("unknown command type, skipping")
		return nil
	}
}
