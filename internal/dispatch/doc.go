// Package dispatch is the bulk send engine.
//
// A Session owns one campaign at a time. SendCampaign picks a strategy from
// the recipient count (direct, batched or chunked), resolves shared
// attachments once, optionally prebuilds a shared MIME payload, and then
// walks the pending recipient indices group by group:
//
//	direct   one recipient at a time, DelayBetweenEmails apart
//	batched  groups of 6 (3 with attachments) sent concurrently, 1s/4s apart
//	chunked  groups of 50 handed to a ChunkSender, 2s apart
//
// Every terminal outcome is recorded in a checkpoint so an interrupted run
// can be resumed without re-sending anyone. Per-recipient failures are
// retried and isolated; only credential, attachment, size and provider
// quota failures stop the run.
package dispatch
