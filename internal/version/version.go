// Package version exposes the application version, overridden at build time with
// -ldflags "-X github.com/ndewijer/SPV-Distribution-Engine/internal/version.Version=1.2.3".
package version

// Version is the running application version.
var Version = "dev"
