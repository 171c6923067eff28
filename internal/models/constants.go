package models

import "time"

const (
	// DefaultSubmitTimeout bounds a single remote create call.
	DefaultSubmitTimeout = 15 * time.Second

	// DefaultProbeInterval is how often the reachability probe runs.
	DefaultProbeInterval = 5 * time.Second

	// DefaultProbeTimeout bounds a single reachability probe.
	DefaultProbeTimeout = 3 * time.Second

	// DefaultLeaseTTL is the lifetime of the cross-process drain lease.
	DefaultLeaseTTL = 2 * time.Minute

	// DefaultRemoteCacheTTL is how long remote list responses stay cached in Redis.
	DefaultRemoteCacheTTL = 30 * time.Second

	// SubscriberBuffer is the channel capacity of a sync signal subscription.
	SubscriberBuffer = 1
)

const (
	// DrainLeaseKey is the lease name guarding the reconciliation pass.
	DrainLeaseKey = "tallybook:drain"
)

const (
	TriggerOnline   = "online"
	TriggerManual   = "manual"
	TriggerFallback = "fallback"
	TriggerInterval = "interval"
	TriggerRetry    = "retry"
	TriggerStartup  = "startup"
)
