package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/sink"
)

// defaultPublishBacklog — длина очереди, после которой подряд идущие тики склеиваются.
const defaultPublishBacklog = 16

// publisher доставляет snapshots в sinks из собственной горутины.
//
// enqueue никогда не блокируется, поэтому медленный sink не тормозит
// executor'ы и не расходует таймаут шага. Snapshots уходят строго
// в порядке версий. Если очередь длиннее backlog, новый snapshot
// заменяет хвост, когда они отличаются только прогрессом и метриками:
// переходы статусов шагов и run доставляются всегда.
type publisher struct {
	sink    sink.Sink
	timeout time.Duration
	backlog int
	logger  *slog.Logger

	mu        sync.Mutex
	queue     []domain.Snapshot
	published uint64
	advanced  chan struct{}
	closed    bool

	wake chan struct{}
	done chan struct{}
}

func newPublisher(s sink.Sink, timeout time.Duration, backlog int, logger *slog.Logger) *publisher {
	p := &publisher{
		sink:     s,
		timeout:  timeout,
		backlog:  backlog,
		logger:   logger,
		advanced: make(chan struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// enqueue ставит snapshot в очередь. После close snapshots отбрасываются.
func (p *publisher) enqueue(snap domain.Snapshot) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if n := len(p.queue); n >= p.backlog && sameShape(p.queue[n-1], snap) {
		p.queue[n-1] = snap
	} else {
		p.queue = append(p.queue, snap)
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// flush ждёт, пока версия version (или более новая) дойдёт до sinks.
func (p *publisher) flush(ctx context.Context, version uint64) error {
	for {
		p.mu.Lock()
		if p.published >= version {
			p.mu.Unlock()
			return nil
		}
		advanced := p.advanced
		p.mu.Unlock()

		select {
		case <-advanced:
		case <-p.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// close перестаёт принимать snapshots, доставляет очередь и ждёт горутину.
func (p *publisher) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	<-p.done
}

func (p *publisher) run() {
	defer close(p.done)
	for {
		snap, ok := p.next()
		if !ok {
			return
		}
		p.deliver(snap)

		p.mu.Lock()
		p.published = snap.Version
		close(p.advanced)
		p.advanced = make(chan struct{})
		p.mu.Unlock()
	}
}

// next забирает голову очереди; false — очередь пуста и publisher закрыт.
func (p *publisher) next() (domain.Snapshot, bool) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			snap := p.queue[0]
			p.queue[0] = domain.Snapshot{}
			p.queue = p.queue[1:]
			p.mu.Unlock()
			return snap, true
		}
		closed := p.closed
		p.mu.Unlock()

		if closed {
			return domain.Snapshot{}, false
		}
		<-p.wake
	}
}

func (p *publisher) deliver(snap domain.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.sink.Publish(ctx, snap); err != nil {
		p.logger.Warn("failed to publish snapshot",
			"run_id", snap.RunID,
			"version", snap.Version,
			"run_state", snap.State,
			"current_step_index", snap.CurrentStepIndex,
			"error", err,
		)
	}
}

// sameShape сообщает, что b отличается от a только прогрессом и метриками.
func sameShape(a, b domain.Snapshot) bool {
	if a.RunID != b.RunID || a.State != b.State || a.CurrentStepIndex != b.CurrentStepIndex ||
		len(a.Steps) != len(b.Steps) {
		return false
	}
	for i := range a.Steps {
		if a.Steps[i].Status != b.Steps[i].Status {
			return false
		}
	}
	return true
}
