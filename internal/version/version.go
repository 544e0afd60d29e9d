package version

// AppName is the display name used in logs, embeds and the CLI.
const AppName = "Server Warden"

// Set at build time with -ldflags "-X server-warden/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// String returns a one-line version summary.
func String() string {
	return AppName + " " + Version + " (" + Commit + ", " + BuildDate + ")"
}
