// Package session provides the Redis-backed login registry: one current
// token per account, with token metadata stored beside it.
//
// # Keys
//
// Keys share the account hash tag so every script touches one slot:
//
//   - es:{<account>}:current      id of the account's current token
//   - es:{<account>}:tok:<token>  binary [Entry] for that token
//   - es:{<account>}:logins       login throttle counter, owned by the engine
//
// # Supersession
//
// [Store.Supersede] writes the new metadata, swaps the current pointer and
// deletes the previous token's metadata in one script. A token is valid only
// while the pointer names it AND its metadata exists, so deleting either key
// revokes it; no denylist is kept.
//
// # What this package must NOT do
//
//   - Parse or sign tokens (the jwt package does that).
//   - Treat a store failure as a valid session.
package session
