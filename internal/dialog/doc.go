// Package dialog implements the conversation side of sign-in.
//
// A conversation moves through Anonymous, AwaitingLink, AwaitingCode and
// Authenticated. LoggedOut behaves like Anonymous on the next turn. Machine
// is the transition function: given the current State and a Turn it returns
// the next State and a list of Effects (replies and session writes). Engine
// holds the per-conversation state, serializes turns per conversation and
// applies the effects.
//
// The callback side advances a conversation out of band through
// Engine.CodeDelivered once it has issued a pending attempt.
package dialog
