// Package lower runs the ordered lowering phases over an IR module.
//
// Each phase names the phases it depends on, checks its own precondition
// before running and its postcondition after. The Manager rejects a phase list
// whose order violates a dependency before anything runs, and checks for
// cancellation at every phase boundary.
package lower
