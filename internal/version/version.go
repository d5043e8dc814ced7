// Package version provides build and version information for curaflow.
package version

// Version is the current release version. Override it at build time with
//
//	go build -ldflags "-X github.com/AaronLay10/curaflow/internal/version.Version=x.y.z"
var Version = "0.1.0"

// UserAgent identifies curaflow in outgoing requests.
func UserAgent() string {
	return "curaflow/" + Version
}
