package inventory

import (
	"context"
	"math/rand"
	"time"
)

// Backoff grows exponentially from Base and never exceeds Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

var DefaultBackoff = Backoff{Base: time.Millisecond, Max: 32 * time.Millisecond}

// Delay returns a jittered wait in [d/2, d] where d = min(Base*2^attempt, Max).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	d := b.Max
	if attempt < 32 {
		if exp := b.Base << uint(attempt); exp > 0 && exp < b.Max {
			d = exp
		}
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
