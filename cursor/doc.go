// Package cursor delivers non-repeating question sequences for practice
// sessions.
//
// Start snapshots the catalog subset for a (account, filter, mode) key into
// a Redis list, removing excluded ids first so the stored length always
// equals what can be delivered. Next advances a position counter with one
// Lua script, so concurrent callers on the same key never see the same
// position. Random mode shuffles once per Start; Next never reorders.
//
// Keys, all sharing the account hash tag:
//
//	ec:{<account>}:<filter>:ids   ordered question ids (LIST)
//	ec:{<account>}:<filter>:pos   next position (STRING)
//
// Both carry the inactivity TTL, refreshed on every Next.
package cursor
