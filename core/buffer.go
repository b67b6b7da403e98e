package core

// bufferView is a snapshot of the newest items of a buffer.
type bufferView[T any] struct {
	Items   []T
	Total   int
	Dropped int
}

// buffer stores ordered items and trims the oldest once maxItems is exceeded.
type buffer[T any] struct {
	items    []T
	maxItems int
	dropped  int
}

func newBuffer[T any](maxItems int) *buffer[T] {
	return &buffer[T]{maxItems: maxItems}
}

// Append adds items in order. When the buffer is full the oldest items are dropped.
func (b *buffer[T]) Append(items ...T) {
	if len(items) == 0 {
		return
	}
	b.items = append(b.items, items...)
	if b.maxItems > 0 && len(b.items) > b.maxItems {
		trim := len(b.items) - b.maxItems
		b.dropped += trim
		b.items = append([]T(nil), b.items[trim:]...)
	}
}

// Len returns the number of retained items.
func (b *buffer[T]) Len() int {
	if b == nil {
		return 0
	}
	return len(b.items)
}

// Items returns a copy of all retained items.
func (b *buffer[T]) Items() []T {
	if b == nil {
		return nil
	}
	return append([]T(nil), b.items...)
}

// Snapshot returns the newest limit items. A limit <= 0 returns everything.
func (b *buffer[T]) Snapshot(limit int) bufferView[T] {
	if b == nil {
		return bufferView[T]{}
	}
	total := len(b.items)
	if limit <= 0 || limit > total {
		limit = total
	}
	items := make([]T, limit)
	copy(items, b.items[total-limit:])
	return bufferView[T]{Items: items, Total: total, Dropped: b.dropped}
}

// Reset discards all items.
func (b *buffer[T]) Reset() {
	b.items = nil
	b.dropped = 0
}
