// Package session holds the durable authentication record of each conversation
// and the stores that persist it.
//
// Two stores are provided. MemoryStore keeps sessions for the life of the
// process; SQLiteStore persists them with modernc.org/sqlite so sign-ins
// survive restarts. Both copy sessions on every read and write.
package session
