package session

import (
	"strings"

	"hwscraper-backend/lib/textutil"
)

// Snapshot is a freshly fetched page used to decide whether a reused
// session is still authenticated.
type Snapshot struct {
	URL  string
	Body string
}

// Markers configures the logged-in heuristic. This is the most fragile,
// site-version-dependent logic in the engine, so it lives behind this
// one seam as plain data per site.
type Markers struct {
	// LoggedOutURL substrings in the current URL mean the portal
	// bounced us back to its auth flow.
	LoggedOutURL []string
	// LoggedIn substrings are content markers that only render for an
	// authenticated user. At least one must match.
	LoggedIn []string
}

// DefaultMarkers covers both portals: Lithuanian logout/"connected"
// labels plus the generic account chrome keywords.
func DefaultMarkers() Markers {
	return Markers{
		LoggedOutURL: []string{"login", "auth"},
		LoggedIn: []string{
			"atsijungti",
			"prisijungta",
			"logout",
			"dashboard",
			"profile",
			"student",
		},
	}
}

// IsLoggedIn applies the keyword heuristic to a page snapshot. It never
// errors; ambiguous content counts as logged out so that the caller
// relogs instead of silently scraping an unauthenticated page.
func IsLoggedIn(snap Snapshot, markers Markers) bool {
	lowerURL := strings.ToLower(snap.URL)
	for _, marker := range markers.LoggedOutURL {
		if strings.Contains(lowerURL, marker) {
			return false
		}
	}

	haystack := snap.URL + " " + snap.Body
	return textutil.MatchName(haystack, markers.LoggedIn)
}
