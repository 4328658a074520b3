// Package semver checks manifest format versions against the range this build understands.
package semver

import (
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:compat"

// SupportedManifestRange is the manifest format range accepted by this build.
const SupportedManifestRange = "^1.0.0"

// SatisfiesRange checks if a version string satisfies a range. A bare major such as "1"
// is a valid range and matches any 1.x.y.
func SatisfiesRange(version, rangeStr string) bool {
	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return constraint.Check(sv)
}

// CheckCompatible returns an error when version is unparsable or outside rangeStr.
// An empty version is treated as compatible.
func CheckCompatible(version, rangeStr string) error {
	if version == "" {
		return nil
	}
	if _, err := masterminds.NewVersion(version); err != nil {
		return fmt.Errorf("%s - invalid version %q: %w", logPrefix, version, err)
	}
	if !SatisfiesRange(version, rangeStr) {
		return fmt.Errorf("%s - version %s does not satisfy %s", logPrefix, version, rangeStr)
	}
	return nil
}
