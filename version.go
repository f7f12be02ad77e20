package main

// Build information, set at build time via -ldflags:
//
//	go build -ldflags "-X main.Version=1.2.3 -X main.Commit=abc1234 -X main.BuildTime=2026-01-02T15:04:05Z"
var (
	// Version is the release version.
	Version = "dev"
	// Commit is the git commit hash the binary was built from.
	Commit = ""
	// BuildTime is the UTC build timestamp.
	BuildTime = ""
)
