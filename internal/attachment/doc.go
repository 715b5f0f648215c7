// Package attachment resolves campaign attachments to base64 payloads.
//
// Shared attachments are resolved once per execution, before the first send,
// by Resolver.ResolveAll. A failure there is fatal for the campaign.
// Per-recipient overrides are resolved lazily by ResolvePersonalized and only
// fail the one recipient. Both paths go through a session-scoped Cache keyed
// by source kind and locator, so the same bytes are never fetched twice.
//
// Sources:
//   - inline:       the locator is the base64 payload (optionally a data: URL)
//   - object-store: AWS S3 GetObject, locator "key", "bucket/key" or "s3://bucket/key"
//   - remote-url:   HTTP GET through httpretry.RetryClient
package attachment
