// Package quota meters AI usage per account in daily and monthly windows.
//
// # Components
//
//   - [Ledger] answers HasQuota/Usage, charges with Consume and derives
//     limits from membership levels in InitializeQuota.
//   - [Store] is the atomic check-and-increment contract. [RedisStore] runs
//     each consume as one Lua script; [MemoryStore] serialises per account
//     with an in-process mutex for single-instance deployments.
//   - [Scheduler] fires ResetDaily at local midnight and ResetMonthly on the
//     first of the month, driven by an injectable clock.
//   - [GatedGenerator] charges the ledger before calling a text generator.
//
// # Window roll-over
//
// Every record carries the day and month its counters belong to. A consume
// that arrives in a later window than the stored stamp treats the counter
// as zero, so a missed scheduler tick never blocks an account. Resets write
// absolute zeros and are idempotent.
package quota
