package sink

import (
	"context"
	"sync"

	"github.com/shaiso/Conveyor/internal/domain"
)

// DefaultBuffer — размер буфера подписки по умолчанию.
const DefaultBuffer = 16

// Broadcaster — in-memory hub подписчиков на snapshots.
//
// Publish никогда не блокируется: если буфер подписчика полон, самый
// старый snapshot выбрасывается, чтобы последний дошёл всегда.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]chan domain.Snapshot
	nextID uint64
	latest *domain.Snapshot
	closed bool
}

// NewBroadcaster создаёт Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[uint64]chan domain.Snapshot),
	}
}

// Publish запоминает snapshot и рассылает его подписчикам.
func (b *Broadcaster) Publish(_ context.Context, snap domain.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	if b.latest != nil && snap.Version < b.latest.Version {
		return nil
	}

	b.latest = &snap
	for _, ch := range b.subs {
		deliver(ch, snap)
	}
	return nil
}

// deliver кладёт snapshot в канал, выбрасывая самый старый при переполнении.
// Вызывается под b.mu, поэтому писатель у канала один.
func deliver(ch chan domain.Snapshot, snap domain.Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe регистрирует подписчика.
//
// Если snapshot уже публиковался, последний сразу попадает в канал.
// cancel отписывает и закрывает канал; повторный вызов безопасен.
func (b *Broadcaster) Subscribe(buffer int) (<-chan domain.Snapshot, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan domain.Snapshot, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.latest != nil {
		ch <- *b.latest
	}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Latest возвращает последний опубликованный snapshot.
func (b *Broadcaster) Latest() (domain.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest == nil {
		return domain.Snapshot{}, false
	}
	return *b.latest, true
}

// Close закрывает все подписки. Дальнейшие Publish игнорируются.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
