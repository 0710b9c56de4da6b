// Package httpapi is the broker's HTTP surface: the CloudPRNT protocol
// endpoint (poll/fetch/confirm), the producer ingestion routes, the
// settings/discovery read endpoints, and the health check. It follows the
// teacher's dependency-injected handler-struct convention
// (`RegisterRoutes(mux *http.ServeMux)`) throughout rather than a global
// router or package-level state.
package httpapi

import (
	"time"

	"github.com/bvisible/CloudPRNT/internal/broker"
	"github.com/bvisible/CloudPRNT/internal/discovery"
	"github.com/bvisible/CloudPRNT/internal/logger"
	"github.com/bvisible/CloudPRNT/internal/queue"
	"github.com/bvisible/CloudPRNT/internal/registry"
)

// Deps is the cross-cutting infrastructure every handler group in this
// package needs. It plays the role the teacher's APIOptions plays for its
// handlers package, trimmed to what a protocol broker actually needs —
// no auth middleware, no audit logger, no tenancy checker.
type Deps struct {
	Broker    *broker.Broker
	Store     queue.Store
	Discovery *discovery.Tracker
	Registry  *registry.Registry
	Log       *logger.Logger

	// DiscoveryFeed is optional. When set, SettingsAPI serves it over
	// websocket so an operator UI sees new printers arrive live instead
	// of polling /api/discovery.
	DiscoveryFeed *registry.Feed

	// ProcessStart is used by the health endpoint's uptime figure.
	ProcessStart time.Time
}
