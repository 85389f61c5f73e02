package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKindMatching(t *testing.T) {
	t.Parallel()

	errDup := Conflict("already registered")
	wrapped := fmt.Errorf("create: %w", errDup)

	require.ErrorIs(t, wrapped, errDup)
	require.ErrorIs(t, wrapped, ErrConflict)
	require.False(t, errors.Is(wrapped, ErrValidation))
	require.Equal(t, "create: already registered", wrapped.Error())

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	require.Equal(t, KindConflict, kind)
}

func TestWrapKeepsSentinelAndCause(t *testing.T) {
	t.Parallel()

	sentinel := Transient("ledger unreachable")
	cause := errors.New("dial tcp: i/o timeout")

	err := Wrap(sentinel, cause)
	require.Equal(t, "ledger unreachable", err.Error())
	require.ErrorIs(t, err, sentinel)
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, ErrTransient)
}

func TestKindOfUnclassified(t *testing.T) {
	t.Parallel()

	_, ok := KindOf(errors.New("plain"))
	require.False(t, ok)
}
