package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsLoggedIn(t *testing.T) {
	markers := DefaultMarkers()

	testCases := []struct {
		name     string
		snap     Snapshot
		expected bool
	}{
		{
			name: "authenticated manodienynas page",
			snap: Snapshot{
				URL:  "https://www.manodienynas.lt/1/lt/page/classhomework/home_work",
				Body: `<a href="/logout">Atsijungti</a><table class="classhomework"></table>`,
			},
			expected: true,
		},
		{
			name: "bounced back to the login page",
			snap: Snapshot{
				URL:  "https://www.manodienynas.lt/1/lt/public/public/login",
				Body: `<form><input name="username"></form> Atsijungti`,
			},
			expected: false,
		},
		{
			name: "eduka auth url",
			snap: Snapshot{
				URL:  "https://eduka.lt/auth",
				Body: "Prisijungti",
			},
			expected: false,
		},
		{
			name: "eduka student area",
			snap: Snapshot{
				URL:  "https://eduka.lt/student/my-groups",
				Body: "<app-root></app-root>",
			},
			expected: true,
		},
		{
			name: "ambiguous content fails closed",
			snap: Snapshot{
				URL:  "https://www.manodienynas.lt/maintenance",
				Body: "<html><body>Atsiprašome, vyksta darbai</body></html>",
			},
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, IsLoggedIn(tc.snap, markers))
		})
	}
}
