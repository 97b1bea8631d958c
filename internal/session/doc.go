// Package session drives the vote round lifecycle. A Coordinator owns the
// one optional active round, consumes transport events and timer ticks one
// at a time, and coordinates the registry, ledger, and prompt queue so that
// every controller is counted at most once per round and every round reaches
// Closed within a bounded time.
package session
