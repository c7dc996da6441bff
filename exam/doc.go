// Package exam assembles exam papers from bucket configuration and freezes
// them per attempt.
//
// Assemble draws Count distinct questions per (type, difficulty) bucket
// with a partial Fisher-Yates shuffle. An under-filled bucket is reported
// as a [Shortfall] on the blueprint and never padded. StartAttempt stores
// the first blueprint for an (exam, account, batch) with SET NX; every
// later call, including a concurrent loser, reads that same blueprint, and
// Submit grades against it.
package exam
