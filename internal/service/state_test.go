package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-docstore/internal/domain"
)

func TestState(t *testing.T) {
	state := NewState()
	require.False(t, state.Ready())

	_, err := state.Services()
	require.ErrorIs(t, err, domain.ErrServiceUnavailable)

	services := &Services{}
	require.NoError(t, state.MarkReady(services))
	require.True(t, state.Ready())

	got, err := state.Services()
	require.NoError(t, err)
	require.Same(t, services, got)

	require.ErrorIs(t, state.MarkReady(&Services{}), ErrAlreadyReady)
}
