// Package config handles loading and validating light bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with LIGHTBRIDGE_* environment variables
//   - Validation of required fields (all problems reported at once)
//   - Default value handling
//
// Security Considerations:
//   - The MQTT password and InfluxDB token should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.ControllerAddress())
package config
