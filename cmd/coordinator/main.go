// Command coordinator runs the workflow coordinator: the webhook ingress,
// the actor runtime with the review and sync machines, the sandbox session
// launcher, and the operator endpoints.
package main

import (
	"flag"
	"fmt"
	"os"

	"coordinator/pkg/config"
	"coordinator/pkg/logx"
)

// Version information - set by goreleaser via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var (
		projectDir  = flag.String("projectdir", ".", "Project directory")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("coordinator %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		os.Exit(0)
	}

	logger := logx.NewLogger("main")
	if err := config.LoadConfig(*projectDir); err != nil {
		logger.Error("config load failed: %v", err)
		os.Exit(1)
	}

	os.Exit(run(logger))
}
