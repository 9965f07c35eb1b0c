package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCrossedLow(t *testing.T) {
	cases := []struct {
		before, after int
		want          bool
	}{
		{before: 11, after: 10, want: true},
		{before: 30, after: 0, want: true},
		{before: 10, after: 9, want: false},
		{before: 5, after: 20, want: false},
		{before: 12, after: 11, want: false},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, CrossedLow(tc.before, tc.after), "before=%d after=%d", tc.before, tc.after)
	}
}

func TestChange_CreatedLowEntryCrosses(t *testing.T) {
	require.True(t, Change{Entry: Entry{Stock: 10}, Before: 10, Created: true}.CrossedLow())
	require.False(t, Change{Entry: Entry{Stock: 11}, Before: 11, Created: true}.CrossedLow())
	require.False(t, Change{Entry: Entry{Stock: 10}, Before: 10}.CrossedLow())
}
