package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/nao1215/webcrawler/internal/config"
)

// Version information set at build time via ldflags.
var (
	version = ""
	commit  = ""
	date    = ""
)

// getVersion returns version string.
// Priority: ldflags > debug.ReadBuildInfo > "(devel)"
func getVersion() string {
	if version != "" {
		return version
	}
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		if buildInfo.Main.Version != "" {
			return buildInfo.Main.Version
		}
	}
	return "(devel)"
}

// buildSetting returns a debug.BuildInfo setting, or "unknown".
func buildSetting(key string) string {
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range buildInfo.Settings {
			if setting.Key == key {
				return setting.Value
			}
		}
	}
	return "unknown"
}

// getCommit returns the short commit hash.
func getCommit() string {
	if commit != "" {
		return commit
	}
	rev := buildSetting("vcs.revision")
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// getDate returns build date.
func getDate() string {
	if date != "" {
		return date
	}
	return buildSetting("vcs.time")
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the version of webcrawler together with the build details and
the crawl defaults compiled into this binary.`,
		RunE: runVersionCmd,
	}
	cmd.Flags().Bool("short", false, "Print only the version number")
	return cmd
}

func runVersionCmd(cmd *cobra.Command, _ []string) error {
	short, err := cmd.Flags().GetBool("short")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if short {
		fmt.Fprintln(out, getVersion())
		return nil
	}
	fmt.Fprintf(out, "webcrawler version %s\n", getVersion())
	fmt.Fprintf(out, "  commit:     %s\n", getCommit())
	fmt.Fprintf(out, "  built:      %s\n", getDate())
	fmt.Fprintf(out, "  go:         %s\n", runtime.Version())
	fmt.Fprintf(out, "  user agent: %s\n", config.DefaultUserAgent)
	fmt.Fprintf(out, "  defaults:   depth %d, %d downloaders, %d extractors, %d per host\n",
		config.DefaultDepth, config.DefaultDownloaders, config.DefaultExtractors, config.DefaultPerHost)
	return nil
}
