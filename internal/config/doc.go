// Package config loads the gateway's YAML configuration with environment
// variable expansion and duration parsing. Policy defaults live with the
// packages that own them; config only overrides what is set.
package config
