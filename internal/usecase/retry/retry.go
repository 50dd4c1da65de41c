package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"optexity/internal/domain/entity"
)

// Policy bounds a locator-based operation. Each try runs under its own
// timeout of Delay; a failed try is followed by a pause of Delay before the
// next one.
type Policy struct {
	MaxTries       int
	Delay          time.Duration
	AssertPresence bool
	Command        string

	// OnAttempt is called with the zero-based try index before every try.
	OnAttempt func(try int)
	// OnFailure is called after every failed try.
	OnFailure func(try int, err error)
}

// FromInteraction derives a policy from the action's retry settings.
func FromInteraction(a *entity.InteractionAction, locator entity.LocatorAction) Policy {
	return Policy{
		MaxTries:       a.MaxTries,
		Delay:          a.PerTryTimeout(),
		AssertPresence: locator.AssertLocatorPresence,
		Command:        locator.Command,
	}
}

// Do runs op until it succeeds or the tries are used up. On exhaustion it
// returns *entity.AssertLocatorPresenceError when presence is asserted and
// the last error otherwise, so the caller can fall back. A configuration
// error ends the loop after the first try.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	tries := p.MaxTries
	if tries < 1 {
		tries = 1
	}

	var lastErr error
	used := 0
	for try := 0; try < tries; try++ {
		used++
		if p.OnAttempt != nil {
			p.OnAttempt(try)
		}

		lastErr = p.attempt(ctx, op)
		if lastErr == nil {
			return nil
		}
		if p.OnFailure != nil {
			p.OnFailure(try, lastErr)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(lastErr, entity.ErrConfiguration) {
			break
		}
		if try < tries-1 {
			if err := sleep(ctx, p.Delay); err != nil {
				return err
			}
		}
	}

	if p.AssertPresence {
		return &entity.AssertLocatorPresenceError{
			Message: fmt.Sprintf("locator not found after %d tries", used),
			Command: p.Command,
			Err:     lastErr,
		}
	}
	return lastErr
}

func (p Policy) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	if p.Delay <= 0 {
		return op(ctx)
	}
	tryCtx, cancel := context.WithTimeout(ctx, p.Delay)
	defer cancel()
	return op(tryCtx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
