// Package config handles loading and parsing of configuration from YAML
// files and environment variables for both the balancer and the signal
// nodes: listen addresses, routing strategy, the initial backend pool,
// health probe and liveness sweep intervals, and signaling protocol limits.
package config
