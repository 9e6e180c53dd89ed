package rate

import (
	"context"

	"go.uber.org/ratelimit"
)

// Jitter spreads bursty work over time. Take blocks until the limiter
// grants a slot or the owning context is done.
type Jitter struct {
	ch    chan struct{}
	l     ratelimit.Limiter
	limit int
}

func NewJitter(ctx context.Context, perSecond int) *Jitter {
	burst := int(float64(perSecond) * 0.1)
	if burst < 1 {
		burst = 1
	}
	j := &Jitter{
		limit: perSecond,
		ch:    make(chan struct{}, burst),
		l:     ratelimit.New(perSecond),
	}
	go j.provider(ctx)
	return j
}

func (j *Jitter) provider(ctx context.Context) {
	defer close(j.ch)
	for {
		j.l.Take()
		select {
		case <-ctx.Done():
			return
		case j.ch <- struct{}{}:
		}
	}
}

func (j *Jitter) Take() {
	<-j.ch
}

func (j *Jitter) Chan() <-chan struct{} {
	return j.ch
}
