package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set via ldflags at build time
var (
	Version   = "dev"
	BuildTime = ""
	GitCommit = ""
)

var rootCmd = &cobra.Command{
	Use:     "cloudtune",
	Short:   "CloudTune - multi-cloud audio streaming server",
	Long:    `A single-binary server that connects browser audio players to WebDAV, Google Drive, OneDrive, Dropbox, S3, vendor drives and local folders through one listing and range-streaming API.`,
	Version: Version,
}

func init() {
	// Set version template to include build info when available
	rootCmd.SetVersionTemplate("cloudtune version {{.Version}}\n")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
