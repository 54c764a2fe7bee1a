// Package config loads the JSON runtime configuration of the swap core,
// overlays secrets from the environment (optionally sourced from a .env file
// next to the config) and fills in defaults such as provider priority, cache
// TTLs and chain constants.
package config
