package version

// Version is overridden at build time with
// -ldflags "-X github.com/mailoreply/smoketest/internal/version.Version=<tag>".
var Version = "unknown"
