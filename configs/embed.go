// Package configs embeds the configuration template written by
// `chatrepair config init`.
//
// Configuration precedence (see internal/config Load):
//  1. Hardcoded defaults (config.NewConfig)
//  2. User config (~/.config/chatrepair/config.yaml)
//  3. Environment variables (CHATREPAIR_*)
//  4. Command-line flags
package configs

import _ "embed"

// UserConfigTemplate is the commented example user configuration.
//
//go:embed config.example.yaml
var UserConfigTemplate string
