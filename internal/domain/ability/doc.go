// Package ability provides the manager-side model of one running component.
//
// A Record tracks one ability instance: its lifecycle state, the token the
// hosted process uses to talk back, the attached Scheduler, its service
// bindings (Connection) and the callers waiting for a result. Records are
// created by the connect manager and the page managers and are never shared
// between them.
//
// Transitions follow one shape. The manager asks for a target state
// (Activate, Inactivate, ForegroundNew, ...); the record shows the matching
// transient state, arms a timeout event keyed by its id and sends a
// lifecycle transaction to the hosted process. When the process reports the
// transition done, CompleteTransition applies it only if it is still the
// transition in flight. A timeout ends it with ForceCompleteTransition.
//
// Tokens are generation-checked handles from a TokenTable. A handle held by
// a caller after its record was released never resolves again.
//
// Example Usage:
//
//	rec := ability.NewRecord(&req, env)
//	if err := rec.LoadAbility(); err != nil { ... }
//	// hosted process attaches
//	rec.SetScheduler(sched)
//	rec.Inactivate()
//	// hosted process reports INACTIVE
//	if rec.CompleteTransition(ability.StateInactive) { ... }
package ability
