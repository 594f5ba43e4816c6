package db

import "context"

// RetryOnConflict runs fn up to attempts times while isConflict(err) holds.
// The last conflict error is returned when the budget is spent.
func RetryOnConflict(ctx context.Context, attempts int, isConflict func(error) bool, fn func(attempt int) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(attempt)
		if err == nil || !isConflict(err) {
			return err
		}
	}
	return err
}
