package resolver

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultAdNetworks is the ad-network allow-list used when none is
// configured.
var DefaultAdNetworks = []string{"monetag.com", "hilltopads.net", "richads.com"}

var fileIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{25,}$`)

// ValidFileID reports whether id looks like a Google Drive file id: at
// least 25 characters of letters, digits, '_' and '-'.
func ValidFileID(id string) bool {
	return fileIDPattern.MatchString(id)
}

// ValidAdURL reports whether raw parses as a URL whose host is exactly one
// of the allowed ad-network domains.
func ValidAdURL(raw string, allowed []string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, a := range allowed {
		if host == strings.ToLower(strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}
