package commands

import (
	"fmt"

	"sessionhub/internal/output"
)

// Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func RunVersion() {
	info := versionInfo{Version: Version, Commit: Commit, Date: Date}
	output.Print(info, func() {
		fmt.Fprintf(output.Out, "sessionhub version %s (commit %s, built %s)\n", Version, Commit, Date)
	})
}
