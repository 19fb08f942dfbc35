package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_ClassifiedErrorKindWins(t *testing.T) {
	err := &ClassifiedError{Kind: ErrRateLimit, Err: errors.New("429")}
	assert.Equal(t, ErrRateLimit, Classify(err))
}

func TestClassify_WrappedClassifiedErrorStillResolves(t *testing.T) {
	err := fmt.Errorf("attempt 2: %w", &ClassifiedError{Kind: ErrAuth, Err: errors.New("401")})
	assert.Equal(t, ErrAuth, Classify(err))
}

func TestClassify_RawDeadlineExceededFallsBackToTimeout(t *testing.T) {
	assert.Equal(t, ErrTimeout, Classify(context.DeadlineExceeded))
}

func TestClassify_WrappedDeadlineExceededFallsBackToTimeout(t *testing.T) {
	err := fmt.Errorf("dial: %w", context.DeadlineExceeded)
	assert.Equal(t, ErrTimeout, Classify(err))
}

func TestClassify_UnrecognizedErrorIsOther(t *testing.T) {
	assert.Equal(t, ErrOther, Classify(errors.New("boom")))
}

func TestClassify_NilIsEmpty(t *testing.T) {
	assert.Equal(t, ErrorKind(""), Classify(nil))
}

func TestClassifyContext(t *testing.T) {
	kind, ok := ClassifyContext(fmt.Errorf("wrapped: %w", context.DeadlineExceeded))
	assert.True(t, ok)
	assert.Equal(t, ErrTimeout, kind)

	_, ok = ClassifyContext(errors.New("unrelated"))
	assert.False(t, ok)
}
