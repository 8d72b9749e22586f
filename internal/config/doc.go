// Package config provides centralized configuration management for the key
// server, the admin CLI and the licensed macro client.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. config.yaml (searched next to the working directory and in configs/)
//	3. Default values from struct tags (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern AXIS_* for namespacing:
//
//	AXIS_SERVER_PORT=8090
//	AXIS_REGISTRY_CHANNEL=http
//	AXIS_REGISTRY_URL=https://raw.githubusercontent.com/acme/auth-data/main/keys.json
//	AXIS_LICENSE_REVALIDATE_INTERVAL=5m
//	AXIS_LOGGING_LEVEL=debug
//
// # Path Management
//
// All files live relative to the executable directory unless the base
// directory is overridden:
//
//	paths, _ := config.GetPaths()
//	records := paths.KeysDir      // keys/<KEY>.json
//	registry := paths.RegistryFile // keys.json
//	token := paths.LicenseFile    // license.dat
//
// # Testing
//
// Use Default() together with NewPaths(t.TempDir()) to build a configuration
// that does not depend on the environment or the executable location.
package config
