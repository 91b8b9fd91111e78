// Package client wraps the conductor HTTP API for CLI and programmatic
// usage. Every method maps to one endpoint; task-submitting methods
// return the accepted task, and WaitTask polls a task to completion.
package client
