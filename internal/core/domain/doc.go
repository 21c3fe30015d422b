// Package domain defines the core domain models for stablemem.
//
// Domain models are pure value objects without any IO dependencies
// or framework coupling. This package contains:
//
//   - Entry: one key/blob pair of the keyed blob store
//   - MemoryHeader: page and byte accounting of both memory tiers
//   - Errors: domain error definitions grouped by failure kind
//
// Failure kinds follow the persistence error taxonomy:
// validation (SM-ARG), encoding (SM-ENC), resource exhaustion (SM-RES)
// and system errors (SM-SYS). Every kind is fatal to the current call.
package domain
