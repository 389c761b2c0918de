// Package inbound consumes negotiation messages from the bus.
//
// Every message passes one generic pipeline: decode, addressing and sender
// checks, role-specific transition rules, idempotent persistence, internal
// notification, then the move to Processed. Failures are classified into a
// Disposition that settles the delivery.
package inbound
