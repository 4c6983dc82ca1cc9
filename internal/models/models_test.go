package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to DocumentStatus
		ok       bool
	}{
		{StatusUploaded, StatusProcessing, true},
		{StatusProcessing, StatusReady, true},
		{StatusProcessing, StatusError, true},
		{StatusUploaded, StatusReady, false},
		{StatusUploaded, StatusError, false},
		{StatusReady, StatusProcessing, false},
		{StatusError, StatusProcessing, false},
		{StatusReady, StatusError, false},
		{StatusProcessing, StatusUploaded, false},
		{StatusReady, StatusUploaded, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusReady.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.False(t, StatusUploaded.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}
