// Package examcore coordinates the concurrency-sensitive parts of an online
// practice and exam platform: one valid login session per account, metered AI
// usage quotas, non-repeating practice delivery and exam paper assembly.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. Every cross-request invariant is
// enforced with a Redis atomic primitive (a Lua script, SET NX or MULTI), so
// any number of application instances may share one Redis.
//
// # Architecture boundaries
//
// examcore is the public surface. It exposes [Engine], [Builder], [Config] and
// the sentinel errors. The session registry, quota ledger, delivery cursor and
// exam assembler live in their own packages and never call one another; the
// engine only delegates.
//
// # What this package must NOT do
//
//   - Verify passwords or otherwise authenticate credentials. Login receives an
//     account that the host has already authenticated.
//   - Write accounts or questions. Both are read through host-supplied interfaces.
//   - Call the text generator before the quota charge succeeded.
//
// # Failure contract
//
// Session validation fails closed on any store fault. A quota charge that hits
// a store fault charges nothing. A cursor advance that hits a store fault
// advances nothing.
package examcore
