package version

// version is set at build time via -ldflags.
var version = "0.0.0-dev"

func GetVersion() string {
	return version
}
