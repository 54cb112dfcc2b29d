// Package config holds the crawler's runtime configuration: the flat
// Config populated from CLI flags, the optional .webcrawler YAML file
// with per-host overrides, and the XDG directories used for the report
// archive.
package config
