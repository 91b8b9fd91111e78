// Package health implements active health probes for managed services.
//
// A service definition may declare an http or tcp health check with an
// endpoint, interval, timeout and retry count. The monitor's prober runs
// the matching Checker on the declared interval and folds results into a
// Status, which tolerates the configured number of consecutive failures
// before flipping to unhealthy. Services with a bus health check (or
// none) are probed passively: they publish their own heartbeats and the
// stale sweep catches silence.
package health
