// Package rate provides the Redis-backed fixed-window counter that throttles
// login churn per account.
//
// # Window semantics
//
// One atomic script per hit: INCR, then PEXPIRE on the first hit of a window.
// Keys live under the session prefix and the account hash tag:
//
//	<prefix>:{<account>}:logins
package rate
