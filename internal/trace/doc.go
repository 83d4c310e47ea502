// Package trace records what the compiler is doing: which contract is being
// assembled, which pass runs, which function is lowered.
//
// # Usage
//
//	clarwasm build --trace=- --trace-level=detail counter.clar
//
// # Tracers
//
//   - Nop: disabled tracing, no allocation per event
//   - StreamTracer: writes every event as it happens (text or NDJSON)
//   - RingTracer: keeps the last events in memory and dumps them on failure
//   - MultiTracer: fans out to several tracers
//
// # Levels and scopes
//
// A level selects the scopes that are recorded:
//
//   - LevelPhase: ScopeDriver and ScopePass (read, check, assemble, encode)
//   - LevelDetail: adds ScopeContract
//   - LevelDebug: adds ScopeFunction, one span per lowered function
//
// LevelError records no spans; failures surface as diagnostics and the ring
// of a LevelPhase or finer tracer can be dumped next to them.
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "check", 0)
//	defer span.End("")
package trace
