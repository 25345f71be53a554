// Package config provides centralized configuration management for the
// ChainScope runtime, supporting configuration files and sensible defaults.
// It will offer hot reload capabilities and typed accessors for downstream
// services.
package config
