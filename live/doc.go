// Package live turns EventSub notifications into chat platform side effects.
//
// The Coordinator keeps the only process-lifetime state of the notifier: a
// reference to the posted go-live announcement, if any. It implements
// eventsub.Handler:
//   - StreamOnline: posts an announcement (enriched from Helix when the stream
//     is visible there), records its reference, unlocks the companion chat
//     channel and sets a streaming presence.
//   - StreamOffline: edits the recorded announcement to STREAM ENDED, clears the
//     reference whatever the edit result, locks the chat channel and restores
//     the default presence.
//   - ChannelUpdate: only while an announcement is recorded, edits it in place
//     with the new title and category.
//
// Platform failures are logged and counted, never returned; the recorded state
// always moves forward. A second StreamOnline while an announcement is recorded
// posts a new message and replaces the reference.
package live
