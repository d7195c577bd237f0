package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrCategoryLifecycle, CodeNoActiveReport, "no active report")
	assert.Equal(t, "[LIFECYCLE:NO_ACTIVE_REPORT] no active report", err.Error())

	wrapped := Wrap(ErrCategoryPersistence, CodeClaimFailed, "claim failed", errors.New("disk full"))
	assert.Equal(t, "[PERSISTENCE:CLAIM_FAILED] claim failed: disk full", wrapped.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ErrCategoryPersistence, CodeAppendFailed, "append failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsMatchesCategoryAndCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewAlreadyFrozen("report 3 already sealed"))
	assert.ErrorIs(t, err, New(ErrCategoryLifecycle, CodeAlreadyFrozen, ""))
	assert.NotErrorIs(t, err, New(ErrCategoryLifecycle, CodeNoActiveReport, ""))
}

func TestRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewPersistenceError(CodeClaimFailed, "claim failed", nil)))
	assert.True(t, IsRetryable(NewAlreadyFrozen("concurrent freeze")))
	assert.True(t, IsRetryable(NewArchiveError(CodeUploadFailed, "upload failed", nil)))
	assert.False(t, IsRetryable(NewInvariantViolation("active report exists")))
	assert.False(t, IsRetryable(NewNoActiveReport("nothing to freeze")))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestCategoryAndCodeExtraction(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewNoActiveReport("none"))
	assert.Equal(t, ErrCategoryLifecycle, GetCategory(err))
	assert.Equal(t, CodeNoActiveReport, GetCode(err))

	assert.Equal(t, ErrorCategory(""), GetCategory(errors.New("plain")))
	assert.Equal(t, "", GetCode(errors.New("plain")))
}

func TestWithDetails(t *testing.T) {
	base := NewInvariantViolation("active report exists")
	detailed := base.WithDetails(map[string]interface{}{"report_id": int64(7)})

	assert.Nil(t, base.Details)
	assert.Equal(t, int64(7), detailed.Details["report_id"])
	assert.Equal(t, base.Code, detailed.Code)
}
