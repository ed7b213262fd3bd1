// Package resilience guards calls to external collaborators with a circuit
// breaker.
//
//	Closed --[Threshold failures]--> Open --[Cooldown]--> Half-Open
//	Half-Open --[Probes successes]--> Closed
//	Half-Open --[any failure]--> Open
//
// While open, calls fail with ErrOpen without reaching the collaborator, so
// a dead app spawner costs the ability manager nothing but a log line.
package resilience
