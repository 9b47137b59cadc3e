package version

// Build metadata, overridden at link time via -ldflags.
var (
	version  = "dev"
	branch   = "unknown"
	date     = "unknown"
	revision = "unknown"
)

func Version() string {
	return version
}

func Branch() string {
	return branch
}

func Date() string {
	return date
}

func Revision() string {
	return revision
}
