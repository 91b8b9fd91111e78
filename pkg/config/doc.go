// Package config loads orchestrator configuration.
//
// Precedence, lowest to highest: built-in defaults, the YAML config
// file, CONDUCTOR_* environment variables. The environment surface is
// intentionally small; per-deployment settings like the broker URL and
// credentials get variables, tuning knobs live in the file.
package config
