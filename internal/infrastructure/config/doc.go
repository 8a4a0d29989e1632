// Package config handles loading and validating KeyRhythm configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with KEYRHYTHM_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Secrets (JWT secret, broker passwords, InfluxDB token) should be set
//     via environment variables rather than the config file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(config.Path())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
