// Package domain defines the core value types of the campaign dispatch engine.
//
// Types in this package are pure value objects with no behavior beyond small
// helpers, no storage dependencies, and no HTTP concerns. They are the shared
// language between the dispatch engine, its stores, and the control API.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON tags are allowed (checkpoints are persisted as JSON)
//   - Derived, in-memory-only data (resolved attachment bytes) carries no JSON tags
//     that would let it leak into a persisted checkpoint
package domain
