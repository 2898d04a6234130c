// Package strategy defines the routing strategy interface and implements
// the balancer's algorithms:
//
//   - Round Robin: cyclic distribution over the healthy set in registration order
//   - Least Connections: fewest active connections, registration order breaking ties
//   - Weighted Random: uniform draw over the weight space
//   - Response Time: lowest response time moving average
//
// Strategies operate on the pre-filtered healthy, non-draining set; health
// and drain filtering happens in the balancer.
package strategy
