package overlay

import "time"

// Protocol ids. Changing any of these breaks interoperability with peers
// still running the prior value.
const (
	// identifyProtocol is advertised as the Identify service's protocol
	// version field, not a stream protocol id of its own — go-libp2p's
	// identify wire protocol id itself is fixed by the library.
	identifyProtocol = "/cryptochat/overlay/1.0.0"
	// kademliaProtocolPrefix is combined by go-libp2p-kad-dht with its own
	// "/kad/1.0.0" suffix, yielding the effective DHT protocol id
	// "/cryptochat/kad/1.0.0".
	kademliaProtocolPrefix = "/cryptochat"
	envelopeProtocol       = "/cryptochat/envelope/1.0.0"
	agentVersion           = "cryptochat-node/1.0.0"
)

// requestTimeout bounds a single envelope request/response round trip.
const requestTimeout = 20 * time.Second

// BootstrapPeer is a configured entry point into the overlay, dialed and
// inserted into the peer set on startup.
type BootstrapPeer struct {
	Multiaddr string
	PeerID    string
}

// Config controls a Runtime's transport, replication, and retry behavior.
type Config struct {
	BootstrapPeers    []BootstrapPeer
	ReplicationFactor int
	EnvelopeTTL       time.Duration
	MaxConnections    int
	StoragePath       string
	RetryInterval     time.Duration
	ListenAddrs       []string
}

// DefaultConfig mirrors the reference node's defaults.
func DefaultConfig() Config {
	return Config{
		ReplicationFactor: 3,
		EnvelopeTTL:       24 * time.Hour,
		MaxConnections:    128,
		StoragePath:       "data/node",
		RetryInterval:     30 * time.Second,
		ListenAddrs: []string{
			"/ip4/0.0.0.0/udp/0/quic-v1",
			"/ip6/::/udp/0/quic-v1",
		},
	}
}
