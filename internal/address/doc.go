// Package address models the conversation address of the chat channel and
// the codec that carries it through the browser sign-in leg.
//
// The correlation token is an HS256 JWT holding the transport, conversation
// and user ids. Signing makes the token tamper-evident: without the server's
// key a caller cannot forge a callback for somebody else's conversation.
package address
