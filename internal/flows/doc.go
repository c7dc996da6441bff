// Package flows contains pure-function orchestrators for the session
// operations exposed by the Engine.
//
// Each flow function (RunLogin, RunValidate, RunLogout, ...) accepts a typed
// dependency struct and returns results without side-effects beyond those
// dependencies. The Engine builds the dependency structs once and stays thin.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session registry, JWT manager,
// audit dispatcher and metrics. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import examcore (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
