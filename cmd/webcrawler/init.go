package main

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nao1215/webcrawler/internal/config"
	"github.com/nao1215/webcrawler/internal/crawler"
)

//go:embed templates/webcrawler.yaml
var configTemplate embed.FS

// configFileName is the default configuration file name.
const configFileName = config.DefaultConfigFile

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a crawl configuration file",
		Long: `Init writes a .webcrawler configuration file to the current directory.

The file sets the crawl depth, per-host download limits, request headers and
link patterns, first for every host and then per host name. Hosts given with
--host get an entry of their own so their limits can be tuned right away.

Examples:
  # Create .webcrawler in current directory
  webcrawler init

  # Add entries for the hosts you plan to crawl, one download at a time
  webcrawler init --host docs.example.com --host https://blog.example.com/ --per-host 1

  # Create config file at a specific path
  webcrawler init -o crawl.yaml

  # Force overwrite existing file
  webcrawler init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")
	cmd.Flags().StringSlice("host", nil,
		"Host name or URL to add a host entry for (repeatable)")
	cmd.Flags().Int("per-host", config.DefaultPerHost,
		"Concurrent downloads allowed for each --host entry")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	hostArgs, err := cmd.Flags().GetStringSlice("host")
	if err != nil {
		return err
	}
	perHost, err := cmd.Flags().GetInt("per-host")
	if err != nil {
		return err
	}
	if perHost < 1 {
		return fmt.Errorf("--per-host must be at least 1, got %d", perHost)
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/webcrawler.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	hosts, err := initHostNames(hostArgs)
	if err != nil {
		return err
	}
	if len(hosts) > 0 {
		entries, err := renderHostEntries(hosts, perHost)
		if err != nil {
			return err
		}
		content = append(content, entries...)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// The file may hold cookies and tokens.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	file, err := config.LoadConfigFile(outputPath)
	if err != nil {
		return fmt.Errorf("generated configuration does not load: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintf(out, "\nCrawl defaults: depth %d, %d concurrent downloads per host\n",
		config.DefaultDepth, config.DefaultPerHost)
	if limits := file.PerHostLimits(); len(limits) > 0 {
		fmt.Fprintln(out, "Host entries:")
		for _, host := range hosts {
			fmt.Fprintf(out, "  %s: %d concurrent downloads\n", host, limits[host])
		}
	}
	fmt.Fprintln(out, "\nUncomment the examples to set cookies, headers or ignore/follow patterns,")
	fmt.Fprintf(out, "then run: webcrawler crawl --config %s <url>\n", outputPath)

	return nil
}

// initHostNames turns --host values into the lower-cased host names used
// as keys of the hosts section. URLs are reduced to their host; duplicates
// are dropped.
func initHostNames(args []string) ([]string, error) {
	hosts := make([]string, 0, len(args))
	seen := make(map[string]struct{}, len(args))
	for _, arg := range args {
		host := strings.ToLower(strings.TrimSpace(arg))
		if strings.Contains(host, "://") {
			host = crawler.HostOf(host)
		}
		if host == "" || strings.ContainsAny(host, "/: ") {
			return nil, fmt.Errorf("invalid host %q: want a host name such as docs.example.com", arg)
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		hosts = append(hosts, host)
	}
	return hosts, nil
}

// renderHostEntries returns YAML lines for the hosts section, indented to
// sit below the template's "hosts:" key.
func renderHostEntries(hosts []string, perHost int) ([]byte, error) {
	entries := make(map[string]config.HostConfig, len(hosts))
	for _, host := range hosts {
		entries[host] = config.HostConfig{PerHost: perHost}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("failed to render host entries: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to render host entries: %w", err)
	}

	var out bytes.Buffer
	out.WriteString("\n")
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		out.WriteString("  " + line + "\n")
	}
	return out.Bytes(), nil
}
