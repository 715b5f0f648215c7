// Package kvstore provides the key/value backing stores behind checkpoint and
// quota persistence.
//
// Every driver implements the same three-call contract (Get, Set, Remove) on
// opaque byte values; callers own serialization and key naming. Drivers:
//   - memory:   process-local map, for tests and single-shot runs
//   - file:     one JSON file per key under a directory, atomic rename on write
//   - redis:    go-redis/v9 GET/SET/DEL
//   - postgres: a single dispatch_kv table via lib/pq
//   - dynamodb: one item per key (PK=key, SK="current")
package kvstore
