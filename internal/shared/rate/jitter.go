package rate

import (
	"context"

	"go.uber.org/ratelimit"
)

// Jitter paces bulk maintenance work (snapshot flushes) so it cannot
// saturate I/O. A small burst buffer smooths the first few takes.
type Jitter struct {
	ch    chan struct{}
	l     ratelimit.Limiter
	limit int
}

func NewJitter(ctx context.Context, limit int) *Jitter {
	brst := int(float64(limit) * 0.1)
	if brst < 1 {
		brst = 1
	}
	jitter := &Jitter{
		limit: limit,
		ch:    make(chan struct{}, brst),
		l:     ratelimit.New(limit),
	}
	go jitter.provider(ctx)
	return jitter
}

func (l *Jitter) provider(ctx context.Context) {
	defer close(l.ch)
	for {
		l.l.Take()
		select {
		case <-ctx.Done():
			return
		case l.ch <- struct{}{}:
		}
	}
}

// Take blocks until a slot is available. A nil Jitter never blocks.
func (l *Jitter) Take() {
	if l == nil {
		return
	}
	<-l.ch
}

func (l *Jitter) Chan() <-chan struct{} {
	return l.ch
}
