package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"validation matches sentinel", Validation("passwords do not match"), ErrValidation, true},
		{"auth matches sentinel", Auth("Invalid login credentials", nil), ErrAuth, true},
		{"not found matches sentinel", NotFound("profile not found"), ErrNotFound, true},
		{"not authenticated matches sentinel", NotAuthenticated(""), ErrNotAuthenticated, true},
		{"remote matches sentinel", Remote("boom", nil), ErrRemote, true},
		{"validation does not match auth", Validation("x"), ErrAuth, false},
		{"wrapped error still matches", fmt.Errorf("sign up: %w", Validation("x")), ErrValidation, true},
		{"plain error does not match", errors.New("x"), ErrRemote, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestFrom(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		require.Nil(t, From(nil))
	})

	t.Run("classified error passes through", func(t *testing.T) {
		orig := NotFound("profile not found")
		require.Same(t, orig, From(fmt.Errorf("load: %w", orig)))
	})

	t.Run("plain error becomes remote", func(t *testing.T) {
		cause := errors.New("connection reset by peer")
		ae := From(cause)
		require.Equal(t, KindRemote, ae.Kind)
		require.Equal(t, "connection reset by peer", ae.Message)
		require.ErrorIs(t, ae, cause)
	})
}

func TestNormalize(t *testing.T) {
	require.Equal(t, Message{}, Normalize(nil))
	require.Equal(t, Message{Message: "Passwords do not match"}, Normalize(Validation("Passwords do not match")))
	require.Equal(t, Message{Message: "JWT expired"}, Normalize(fmt.Errorf("select events: %w", Remote("JWT expired", errors.New("401")))))
	require.Equal(t, Message{Message: "dial tcp: timeout"}, Normalize(errors.New("dial tcp: timeout")))
}

func TestError_Error(t *testing.T) {
	require.Equal(t, "Invalid login credentials", Auth("Invalid login credentials", nil).Error())
	require.Equal(t, "remote error: eof", Remote("remote error", errors.New("eof")).Error())
	require.Equal(t, "eof", Remote("eof", errors.New("eof")).Error())
}

func TestKind_String(t *testing.T) {
	require.Equal(t, "validation", KindValidation.String())
	require.Equal(t, "not_authenticated", KindNotAuthenticated.String())
	require.Equal(t, "auth", KindAuth.String())
	require.Equal(t, "not_found", KindNotFound.String())
	require.Equal(t, "remote", KindRemote.String())
	require.Equal(t, KindAuth, KindOf(fmt.Errorf("x: %w", Auth("bad", nil))))
}
