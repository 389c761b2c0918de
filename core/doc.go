// Package core holds the RFP negotiation domain: actions, requests for
// proposal and the transition rules between them. Store contracts and the
// error taxonomy shared by the inbound and outbound pipelines live here too.
// Bus, persistence and command adapters depend on this package; core depends
// on none of them.
package core
