package session

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// VersionError is returned when a storefront client is older than the
// minimum the service accepts.
type VersionError struct {
	Code          string
	Message       string
	ClientVersion string
	MinVersion    string
}

func (e *VersionError) Error() string {
	return e.Message
}

// CheckVersion rejects clients older than minVersion. An empty minVersion
// accepts everyone; once a minimum is set, clients must declare a version.
func CheckVersion(minVersion, clientVersion string) error {
	if minVersion == "" {
		return nil
	}

	mv := normalizeVersion(minVersion)
	cv := normalizeVersion(clientVersion)
	if clientVersion == "" || !semver.IsValid(cv) {
		return &VersionError{
			Code:          CodeUpgradeRequired,
			Message:       fmt.Sprintf("storefront version %q is not a valid version; %s or newer is required", clientVersion, minVersion),
			ClientVersion: clientVersion,
			MinVersion:    minVersion,
		}
	}
	if semver.Compare(cv, mv) < 0 {
		return &VersionError{
			Code:          CodeUpgradeRequired,
			Message:       fmt.Sprintf("storefront version %s is no longer supported; %s or newer is required", clientVersion, minVersion),
			ClientVersion: clientVersion,
			MinVersion:    minVersion,
		}
	}
	return nil
}

// ValidVersion reports whether v parses as a semantic version, with or
// without the leading "v".
func ValidVersion(v string) bool {
	return v != "" && semver.IsValid(normalizeVersion(v))
}

// normalizeVersion adds "v" prefix if needed for semver parsing.
func normalizeVersion(v string) string {
	if v == "" {
		return "v0.0.0"
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}
