package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hengadev/errsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := New(KindAccessDenied, "unprotect", "requester is not the owner").
		With("protectionId", "p-1").
		With("requester", "u-2")

	assert.Equal(t, "unprotect: AccessDenied: requester is not the owner (protectionId=p-1, requester=u-2)", err.Error())
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(KindExpired, "accessShared", "share expired"))

	assert.ErrorIs(t, err, ErrExpired)
	assert.NotErrorIs(t, err, ErrAccessDenied)
	assert.True(t, Is(err, KindExpired))

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindExpired, kind)
}

func TestKindOfUntagged(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("cipher: message authentication failed")
	err := Wrap(KindIntegrityViolation, "open", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrIntegrityViolation)
}

func TestInvalid(t *testing.T) {
	var errs errsx.Map
	assert.NoError(t, Invalid("grantConsent", errs))

	errs.Set("purpose", "purpose is required")
	errs.Set("duration", "duration must be positive")

	err := Invalid("grantConsent", errs)
	require.Error(t, err)
	assert.True(t, Is(err, KindInvalidInput))
	assert.Contains(t, err.Error(), "invalid duration, purpose")
}

func TestKindJSON(t *testing.T) {
	b, err := KindInsufficientApprovals.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"InsufficientApprovals"`, string(b))

	var k Kind
	require.NoError(t, k.UnmarshalJSON([]byte(`"rolemismatch"`)))
	assert.Equal(t, KindRoleMismatch, k)
}
