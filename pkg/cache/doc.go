// Package cache provides a redis-backed cache for single-resource lookups.
//
// The catalog API sends no cache-validation headers, so entries carry a
// fixed TTL enforced by redis key expiry. Caching is an optimization only:
// callers must treat every cache error as a miss and fall back to the API.
// Only per-id lookups are cached; page listings and scan results are not.
package cache
