package flavour

import (
	"fmt"
	"regexp"

	goversion "github.com/hashicorp/go-version"
)

var versionPattern = regexp.MustCompile(`\d+(\.\d+)+`)

// compareServerVersion parses a raw server version banner and compares it
// against the oldest supported version. A nil warning means the server is
// recent enough or the banner was unparseable; the check is advisory only.
func compareServerVersion(raw, minimum string) *VersionWarning {
	match := versionPattern.FindString(raw)
	if match == "" {
		return nil
	}

	server, err := goversion.NewVersion(match)
	if err != nil {
		return nil
	}
	min, err := goversion.NewVersion(minimum)
	if err != nil {
		return nil
	}

	if server.LessThan(min) {
		return &VersionWarning{
			ServerVersion:  match,
			MinimumVersion: minimum,
			Message: fmt.Sprintf(
				"server version %s is older than the oldest supported version %s; migrations may use unsupported syntax",
				match, minimum,
			),
		}
	}
	return nil
}
