// Package version carries build metadata injected with
// -ldflags "-X github.com/malganis13/g2a-automation/internal/version.Version=...".
package version

import (
	"fmt"
	"runtime"
)

// Name is the binary name reported by the version command.
const Name = "g2a-repricer"

// Set at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info renders the build metadata as printed by the version command and
// logged at service start.
func Info() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s)", Name, Version, Commit, BuildDate, runtime.Version())
}
