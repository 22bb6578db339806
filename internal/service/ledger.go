package service

import (
	"context"
	"errors"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/repository"
)

const maxConflictAttempts = 3

// transition is applied to a copy of the row. It reports whether anything
// changed; an error means the row is no longer in a state it applies to.
type transition func(e *model.Email) (bool, error)

// applyTransition performs a versioned read-modify-write. On a version
// conflict it reloads the row and re-applies the transition.
func applyTransition(ctx context.Context, repo repository.EmailRepositoryInterface, sink metrics.Sink, current *model.Email, apply transition) (*model.Email, bool, error) {
	for attempt := 1; ; attempt++ {
		next := *current
		changed, err := apply(&next)
		if err != nil {
			return current, false, err
		}
		if !changed {
			return current, false, nil
		}

		err = repo.Update(ctx, &next)
		if err == nil {
			return &next, true, nil
		}
		if !errors.Is(err, appErrors.ErrConcurrencyConflict) || attempt == maxConflictAttempts {
			return current, false, err
		}

		sink.VersionConflict()
		reloaded, rerr := repo.GetByID(ctx, current.ID)
		if rerr != nil {
			return current, false, rerr
		}
		current = reloaded
	}
}
