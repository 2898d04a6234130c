// Package loadbalancer owns the backend registry and the sticky session
// table and turns routing requests into backend selections. Sticky lookups
// win over the configured strategy as long as their backend stays healthy;
// draining backends are excluded from new decisions only.
package loadbalancer
