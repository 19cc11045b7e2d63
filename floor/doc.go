// Package floor implements the distributed floor-arbitration protocol that
// decides which endpoint may transmit on a half-duplex channel.
//
// The protocol is deliberately small: a requester broadcasts a FloorRequest
// and waits, with exponential backoff, for a response correlated by sequence
// number. Any peer may answer - a grant from one peer suffices, a denial from
// the current holder resolves the request negatively. There is no
// acknowledgment machinery; per-sender sequence numbers with a bounded
// forward window deduplicate retransmissions, and emergency claims substitute
// raw repetition for reliability.
//
// Mutual exclusion is best effort. When no peer answers at all the arbiter
// assumes a partitioned mesh, claims the floor locally so the operator can
// still talk, and raises a network-degraded event. Under partition two
// endpoints can therefore both hold the floor; the protocol favors
// availability over strict exclusion.
//
// All ownership transitions go through a single atomic compare-and-set on
// one state word. The receive path and the caller's request path race: a
// grant can arrive while a remote request is being decided, so no transition
// may separate its state check from its state change.
package floor
