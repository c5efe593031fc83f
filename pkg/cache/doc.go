// Package cache provides the TTL key-value caches used to memoize computed
// permission sets.
//
// MemoryCache is a size-bounded LRU (hashicorp/golang-lru/v2/expirable) with
// per-entry expiry. Expiry is checked lazily on Get, so a stale value is never
// returned; Sweeper removes expired entries on a cron schedule purely to free
// memory.
//
// RedisCache stores the same values in Redis so that several instances share
// one cache. BroadcastCache wraps a local cache and publishes every Delete and
// Clear on a Redis channel through an Invalidator, so that peer instances drop
// their copies too.
//
// Keys are pure functions of their semantic inputs (see PermissionKey): a
// writer can rebuild the key of the entry it invalidates without coordination.
package cache
