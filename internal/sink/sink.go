package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Sink получает snapshots pipeline.
//
// Publish вызывается последовательно из горутины доставки Controller'а
// в порядке версий. Ошибка или задержка Sink'а не влияет на состояние run;
// при отставании промежуточные тики могут быть пропущены.
type Sink interface {
	Publish(ctx context.Context, snap domain.Snapshot) error
}

// Func — адаптер функции к Sink.
type Func func(ctx context.Context, snap domain.Snapshot) error

// Publish вызывает f.
func (f Func) Publish(ctx context.Context, snap domain.Snapshot) error {
	return f(ctx, snap)
}

// Multi рассылает snapshot во все sinks по порядку.
//
// Ошибка одного sink'а не останавливает остальных; все ошибки
// объединяются через errors.Join.
type Multi []Sink

// Publish публикует snapshot во все sinks.
func (m Multi) Publish(ctx context.Context, snap domain.Snapshot) error {
	var errs []error
	for i, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("sink %d (%T): %w", i, s, err))
		}
	}
	return errors.Join(errs...)
}

// Discard — sink, который ничего не делает.
var Discard Sink = Func(func(context.Context, domain.Snapshot) error { return nil })
