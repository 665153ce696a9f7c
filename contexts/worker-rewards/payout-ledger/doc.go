// Package payoutledger implements the worker reward ledger inside the
// worker-rewards context.
//
// The module assigns tasks to workers, credits a fixed share of each task's
// reward per accepted submission, and settles withdrawals against an external
// transfer gateway through a durable queue. Every balance mutation is a
// single database transaction; the settlement side is at-least-once and made
// safe by the PENDING gate on the payout row.
package payoutledger
