package app

import (
	"context"

	"codetrivia-performance/internal/domain"
)

// BucketHook runs inside the recording transaction right before the bucket for the
// index-th question is upserted. A non-nil error aborts and rolls back the whole session.
// Backends accept it through a WithBucketHook option; it exists for failure-injection tests.
type BucketHook func(ctx context.Context, index int, q domain.QuestionOutcome) error
