// Package configs provides the embedded configuration templates written by
// `nichicrawl config init`.
//
// Configuration hierarchy (see internal/config Load):
//  1. Defaults (config.NewConfig)
//  2. User config (~/.config/nichicrawl/config.yaml)
//  3. Project config (.nichicrawl.yaml)
//  4. Environment variables (NICHICRAWL_*)
//  5. Command flags
package configs

import _ "embed"

// UserConfigTemplate is written to the user config path. It holds settings
// that apply to every crawl on this machine: remote endpoints, politeness
// and logging.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written to .nichicrawl.yaml in the working
// directory. It holds the scan plan and output paths of one data set.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
