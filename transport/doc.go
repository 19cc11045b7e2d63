// Package transport implements the multicast transport layer for meshwave.
//
// One UDP socket serves a logical channel: endpoints join a multicast group,
// send best-effort datagrams to it, and drain it with bounded-timeout reads so
// a receive loop stays responsive to shutdown without busy-spinning. Multicast
// distribution keeps the fan-out cost of a transmitted frame constant
// regardless of the number of peers, which matters on radio links with tens
// of participants.
//
// Outbound traffic is DSCP-marked (Expedited Forwarding by default) so voice
// is not starved by best-effort traffic on QoS-enabled mesh nodes.
//
// Example:
//
//	tr, err := transport.NewUDPMulticast(transport.Config{ListenAddr: ":5004"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tr.Close()
//
//	if err := tr.Join("239.255.42.99:5004"); err != nil {
//	    log.Fatal(err)
//	}
//
//	for {
//	    data, _, err := tr.Receive(100 * time.Millisecond)
//	    if errors.Is(err, transport.ErrNoData) {
//	        continue
//	    }
//	    ...
//	}
package transport
