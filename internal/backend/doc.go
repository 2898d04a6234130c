// Package backend models one signal node behind the balancer. It tracks
// health, draining state, connection and error counters, a response time
// moving average, and owns the reverse proxy used to forward traffic.
package backend
