package health

import (
	"context"
	"fmt"

	"github.com/MrWong99/formscribe/internal/resilience"
)

// Breaker fails while cb is open. A half-open breaker counts as ready so
// that probe calls can close it again.
func Breaker(cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name: cb.Name(),
		Check: func(context.Context) error {
			if st := cb.State(); st == resilience.StateOpen {
				return fmt.Errorf("circuit %s", st)
			}
			return nil
		},
	}
}

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks p under name.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}
