// Package config handles YAML configuration loading with environment variable substitution
// and environment overrides.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// After the file is parsed, AODATA_* environment variables (optionally read from a .env
// file) override individual fields, so a deployment can run from the environment alone.
package config
