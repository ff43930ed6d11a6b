// Package overlay implements the node's store-and-forward peer network: a
// single-threaded cooperative runtime owning a libp2p swarm, a Kademlia-style
// peer discovery service, and a replication protocol that publishes
// envelopes to a peer set and retries until every target acknowledges.
//
// All interaction with the runtime goroutine happens through a bounded
// command channel (Dial, Publish, Shutdown) and a broadcast event stream
// (ReplicationEvent, DiscoveryEvent); nothing outside the runtime touches
// the swarm or the in-flight request map directly.
package overlay
