// Package handler contains the balancer's HTTP surface: the proxy handler
// forwarding client traffic (WebSocket upgrades included) to the selected
// signal node, and the admin API for pool management and stats.
package handler
