// Package config handles loading and validating automation service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Preloading a dotenv file into the environment
//   - Overriding with environment variables
//   - Validation of required fields
//
// Sensitive values (MQTT password, InfluxDB token, Redis password) should be
// set via environment variables rather than committed to the config file.
//
// Usage:
//
//	if err := config.LoadEnvFile(".env"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
