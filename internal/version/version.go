package version

// Version is the current version of the carecall CLI and signaling server.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/Leontarin/CareBell-sub000/internal/version.Version=v1.0.0'"
var Version = "dev"
