// Package memory provides cross-session semantic memory for conversational
// agents: durable user facts, exact-match preferences, and conversation
// summaries, retrieved by meaning and selectively reintroduced into later
// conversations.
//
// Invariants:
// - A fact either carries an embedding of the store's fixed dimension or none at all.
// - Retrieval degrades to keyword overlap when embeddings are unavailable; it never fails the calling conversation.
// - Retention (summary TTL, fact count cap) runs asynchronously and never deletes preferences.
//
// Usage:
//
//	svc, _ := memory.Open(memory.Options{DataDir: "/data/engram"})
//	defer svc.Close()
//	_, _ = svc.Remember(ctx, "User likes reading sci-fi books", "")
//	payload, _ := svc.BuildContext(ctx, "Any good book recommendations?")
//	_ = payload
//
// BuildContext takes only the current query: cross-session context lives in
// the stored summaries, and the caller already holds the live conversation,
// so no history parameter is needed to build the injection payload.
package memory
