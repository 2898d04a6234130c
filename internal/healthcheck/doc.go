// Package healthcheck probes backend signal nodes on a fixed cycle and
// flips their health state. A 2xx probe response marks a backend healthy;
// anything else, including a timed-out probe, marks it unhealthy. State
// transitions are emitted as recovered/degraded events to the metrics
// collector. Probe failures are internal and never surface to clients.
package healthcheck
