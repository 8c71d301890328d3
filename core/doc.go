// Package core contains the relay domain contracts, entities, and delivery
// orchestration logic. Storage, transport, and runtime adapters depend on this
// package; core must not depend on any concrete store or job runtime.
package core
