package version

import (
	"runtime/debug"
	"strings"
)

// Version is set at build time with
// -ldflags "-X github.com/ShayCichocki/forge/internal/version.Version=v1.2.3".
var Version = ""

// Get returns the current version, with whitespace trimmed. Builds without
// ldflags fall back to the module version recorded by the toolchain.
func Get() string {
	if v := strings.TrimSpace(Version); v != "" {
		return v
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
