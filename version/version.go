package version

import "fmt"

var (
	// Set through -ldflags at release time
	semver   = "0.3.0"
	revision = "unknown"
)

// Get returns the release version.
func Get() string {
	return semver
}

func GetRevision() string {
	return revision
}

// String is the form printed by the version command and sent with the
// status endpoint.
func String() string {
	return fmt.Sprintf("piggyclaim %s (%s)", semver, revision)
}
