// Package config handles loading and validating garage bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GARAGEBRIDGE_* environment variables (envconfig)
//   - Reading legacy config.json credentials
//   - Validation of required fields
//
// Environment keys follow the section and field names, for example
// GARAGEBRIDGE_MYQ_EMAIL, GARAGEBRIDGE_BRIDGE_REFRESH_INTERVAL or
// GARAGEBRIDGE_DISCOVERY_MODE. The bare PORT variable overrides api.port.
//
// Security Considerations:
//   - Cloud credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
