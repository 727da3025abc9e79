// Package config loads and validates HearthLink configuration.
//
// Configuration is read from a YAML file with three layers of precedence:
//
//  1. Hardcoded defaults
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern HEARTHLINK_SECTION_KEY, for
// example HEARTHLINK_CLOUD_PASSWORD or HEARTHLINK_DATABASE_PATH. Secrets
// (the account password, the InfluxDB token) are normally supplied this
// way rather than written into the file.
//
// Validation runs after all layers are applied; an invalid configuration
// never reaches the rest of the application.
package config
