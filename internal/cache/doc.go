// Package cache defines the named, durable key→response stores the cache
// router writes into. A store is addressed by name (for example
// currency-converter-v1.0.2) and holds entries keyed by exact request identity
// ("GET https://host/path?query"). Every driver guarantees that a write is
// atomic per identity: readers observe either the previous entry or the new
// one, never a partial body. The router depends on this package to precache
// the application shell, keep runtime responses for offline use and prune
// stores left behind by previous deploys.
package cache
