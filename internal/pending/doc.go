// Package pending stores in-flight sign-in attempts and verifies the magic
// codes users type back into the conversation.
//
// Each attempt binds one conversation address to the provider tokens obtained
// in the browser. At most one attempt per address is Issued at a time: issuing
// again supersedes the previous one, so an older code can never be replayed.
// Attempts are retained until their ExpiresAt, whatever their status, and are
// then reclaimed by a background sweep.
package pending
