package main

import (
	"fmt"
	"os"

	"github.com/tphakala/rtsync/cmd"
	"github.com/tphakala/rtsync/internal/buildinfo"
	"github.com/tphakala/rtsync/internal/conf"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = ""
)

func main() {
	info := buildinfo.NewContext(version, buildDate, "")
	settings := &conf.Settings{}

	rootCmd := cmd.RootCommand(conf.NewViper(), settings, info)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
