// Package repl runs stablemem-cli commands interactively.
//
// Each input line is split into arguments, honouring single and double
// quotes, and handed to an executor. The loop keeps a persistent history
// and suggests command names for unknown input.
package repl
