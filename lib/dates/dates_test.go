package dates

import (
	"testing"
	"time"

	"hwscraper-backend/lib/timezone"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseSameCalendarDate(t *testing.T) {
	// mid school year so "spalio 15" resolves into the same year
	now := time.Date(2025, time.September, 20, 12, 0, 0, 0, timezone.Location)
	expected := time.Date(2025, time.October, 15, 0, 0, 0, 0, timezone.Location)

	for _, text := range []string{
		"2025-10-15",
		"15.10.2025",
		"15/10/2025",
		"spalio 15",
		"Spalio 15",
		"Atlikti iki: 2025-10-15 23:59",
	} {
		got, ok := ParseAt(text, now)
		require.True(t, ok, "expected %q to parse", text)
		if diff := cmp.Diff(expected, got); diff != "" {
			t.Fatalf("%q parsed wrong (-want +got):\n%s", text, diff)
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	now := time.Date(2025, time.September, 20, 12, 0, 0, 0, timezone.Location)

	for _, text := range []string{
		"",
		"rytoj",
		"15",
		"negaliojantis 15",
		"99.99.2025",
	} {
		_, ok := ParseAt(text, now)
		require.False(t, ok, "expected %q not to parse", text)
	}
}

func TestParseSchoolYearResolution(t *testing.T) {
	testCases := []struct {
		text     string
		now      time.Time
		expected time.Time
	}{
		{
			// autumn month seen in spring belongs to the previous calendar year
			text:     "spalio 3",
			now:      time.Date(2026, time.April, 1, 0, 0, 0, 0, timezone.Location),
			expected: time.Date(2025, time.October, 3, 0, 0, 0, 0, timezone.Location),
		},
		{
			// spring month seen in autumn belongs to the next calendar year
			text:     "kovo 12",
			now:      time.Date(2025, time.November, 1, 0, 0, 0, 0, timezone.Location),
			expected: time.Date(2026, time.March, 12, 0, 0, 0, 0, timezone.Location),
		},
		{
			text:     "gruodžio 1",
			now:      time.Date(2025, time.September, 1, 0, 0, 0, 0, timezone.Location),
			expected: time.Date(2025, time.December, 1, 0, 0, 0, 0, timezone.Location),
		},
	}

	for _, tc := range testCases {
		got, ok := ParseAt(tc.text, tc.now)
		require.True(t, ok, tc.text)
		require.Equal(t, tc.expected, got, tc.text)
	}
}

func TestIsNoDeadline(t *testing.T) {
	require.True(t, IsNoDeadline("Neribotas"))
	require.True(t, IsNoDeadline("neribota trukmė"))
	require.True(t, IsNoDeadline("unlimited"))
	require.True(t, IsNoDeadline("be termino"))
	require.False(t, IsNoDeadline("2025-10-15"))
	require.False(t, IsNoDeadline(""))
}
