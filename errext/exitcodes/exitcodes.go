/*
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package exitcodes lists the process exit codes the CLI may terminate with.
package exitcodes

// ExitCode is a process exit status, attached to an error via
// errext.WithExitCodeIfNone so the CLI's top-level handler knows what to
// return from main without re-deriving it from the error's type.
type ExitCode uint8

const (
	// GenericError is returned for anything that doesn't set a more
	// specific code.
	GenericError ExitCode = 1

	// InvalidConfig is returned when a Runtime's Options or the CLI's
	// log flags fail validation.
	InvalidConfig ExitCode = 102

	// ScriptException is returned when an uncaught bomb reaches the main
	// tasklet (spec.md Open Question (c)).
	ScriptException ExitCode = 103

	// RuntimePanic is returned when a ContractViolation escapes to the
	// CLI boundary (wrong thread, double-init, missing main).
	RuntimePanic ExitCode = 104

	// MemoryExhausted is returned when the profiler's sticky
	// out-of-memory flag surfaces on its next externally visible
	// operation.
	MemoryExhausted ExitCode = 105
)
