// Package semver wraps Masterminds/semver for the two version concerns the dispatcher
// needs outside pkg/controller's Since gating: parsing the configured server version at
// startup, and checking a client protocol constraint against it. internal/transport's
// connect path does not perform that check.
package semver

import (
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:version"

// ParseServerVersion parses the configured server version string, used for the Since
// gating in pkg/controller.Config.ServerVersion.
func ParseServerVersion(raw string) (*masterminds.Version, error) {
	v, err := masterminds.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid server version %q: %w", logPrefix, raw, err)
	}
	return v, nil
}

// CheckClientCompatible reports whether serverVersion satisfies the client's declared
// protocol constraint (e.g. ">=1.0.0, <2.0.0"). No transport code calls it. An empty
// constraint is always compatible.
func CheckClientCompatible(serverVersion *masterminds.Version, constraint string) (bool, error) {
	if constraint == "" {
		return true, nil
	}
	c, err := masterminds.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("%s - invalid client constraint %q: %w", logPrefix, constraint, err)
	}
	return c.Check(serverVersion), nil
}
