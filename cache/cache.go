// Package cache provides a small read-model cache for derived agreement
// summaries. Summaries shift with the calendar and are invalidated on every
// mutation, so entries carry a short TTL.
package cache

import "time"

type Cache interface {
	Get(key string) (string, bool)
	Set(key string, value string, ttl time.Duration) error
	Delete(key string) error
}
