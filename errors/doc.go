// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the boundary call, element type, path and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindOverflow).
//		Call("ToSlice").
//		Type("NodeRecord").
//		Detail("list data size overflow").
//		Build()
//
// Contract violations are caller bugs and are raised with panic, never
// returned. Recover them only in tests or at a process boundary:
//
//	errors.New(errors.PhaseAlloc, errors.KindContractViolation).
//		Call("AllocateN").
//		Detail("n=%d, want 1", n).
//		Contract()
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
