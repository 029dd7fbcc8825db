// Package config loads the pinagentd daemon configuration from YAML and
// applies defaults for anything the operator left out.
package config
