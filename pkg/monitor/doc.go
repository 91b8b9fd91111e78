// Package monitor implements the stale sweep over the instance tracker.
//
// Liveness on the bus is passive: services report status and health on
// their own schedule, and the tracker stamps every report. The monitor
// walks the tracker at a fixed interval and demotes any instance whose
// last report is older than the stale threshold to the Unknown state
// with Unknown health. A demoted instance is reinstated the moment its
// next report arrives; no command traffic is generated either way.
//
// Unknown is deliberately distinct from Failed. A silent instance may be
// healthy with a broken reporting path, so the recovery loop ignores it
// and operators decide.
//
// The package also hosts the active Prober, which runs the http and tcp
// health checks declared on service definitions and writes the outcomes
// into the tracker alongside bus-reported health.
package monitor
