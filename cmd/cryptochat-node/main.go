// Command cryptochat-node runs one identity's overlay peer and message
// pipeline as a standalone process: it owns an account, a libp2p overlay
// node, and the bbolt-backed outbound/inbound/receipt store behind it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jakobs1900/cryptochat/crypto"
	"github.com/jakobs1900/cryptochat/envelope"
	"github.com/jakobs1900/cryptochat/overlay"
	"github.com/jakobs1900/cryptochat/pipeline"
	"github.com/jakobs1900/cryptochat/store"
)

// cliConfig holds every command-line option this node accepts. Network,
// identity, and retry settings are split into their own flag groups the
// same way the teacher's testnet CLI organizes its own flag sets.
type cliConfig struct {
	instance          uint
	dataDir           string
	username          string
	password          string
	peerCertsDir      string
	bootstrap         string
	listenAddrs       string
	replicationFactor int
	retryInterval     time.Duration
	logLevel          string
}

func parseCLIFlags() *cliConfig {
	cfg := &cliConfig{}

	flag.UintVar(&cfg.instance, "instance", 0, "instance number, appended to the storage directory so multiple processes on one host don't collide")
	flag.StringVar(&cfg.dataDir, "data-dir", "data/node", "base storage directory")
	flag.StringVar(&cfg.username, "username", "", "account username; required on first run")
	flag.StringVar(&cfg.password, "password", "", "account password; required")
	flag.StringVar(&cfg.peerCertsDir, "peer-certs-dir", "", "directory of armored public key files named <fingerprint>.asc, used to verify and decrypt inbound messages from known senders")
	flag.StringVar(&cfg.bootstrap, "bootstrap", "", "comma-separated bootstrap peers, each as multiaddr|peerid")
	flag.StringVar(&cfg.listenAddrs, "listen", "", "comma-separated listen multiaddrs; empty uses the default QUIC listeners")
	flag.IntVar(&cfg.replicationFactor, "replication-factor", 3, "number of peers to replicate each outbound envelope to")
	flag.DurationVar(&cfg.retryInterval, "retry-interval", 30*time.Second, "interval between retry sweeps of pending outbound envelopes")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	flag.Parse()
	return cfg
}

func main() {
	cfg := parseCLIFlags()

	level, err := logrus.ParseLevel(cfg.logLevel)
	if err != nil {
		logrus.WithError(err).Fatal("invalid log level")
	}
	logrus.SetLevel(level)

	if cfg.username == "" || cfg.password == "" {
		logrus.Fatal("-username and -password are required")
	}

	if err := run(cfg); err != nil {
		logrus.WithError(err).Fatal("node exited with error")
	}
}

func run(cfg *cliConfig) error {
	storageDir := filepath.Join(cfg.dataDir, fmt.Sprintf("instance-%d", cfg.instance))
	if err := os.MkdirAll(storageDir, 0o700); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	keypair, err := loadOrCreateIdentity(storageDir, cfg.username, cfg.password)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	log := logrus.WithFields(logrus.Fields{"fingerprint": keypair.Fingerprint(), "username": cfg.username})
	log.Info("identity ready")

	localDevice, err := loadOrCreateDeviceId(storageDir)
	if err != nil {
		return fmt.Errorf("load device id: %w", err)
	}

	knownCerts, err := loadKnownCerts(storageDir, cfg.peerCertsDir)
	if err != nil {
		return fmt.Errorf("load known peer certificates: %w", err)
	}
	log.WithField("known_certs", len(knownCerts)).Info("loaded known peer certificates")

	overlayCfg := overlay.DefaultConfig()
	overlayCfg.StoragePath = filepath.Join(storageDir, "overlay.db")
	overlayCfg.ReplicationFactor = cfg.replicationFactor
	overlayCfg.RetryInterval = cfg.retryInterval
	if cfg.listenAddrs != "" {
		overlayCfg.ListenAddrs = strings.Split(cfg.listenAddrs, ",")
	}
	overlayCfg.BootstrapPeers, err = parseBootstrapPeers(cfg.bootstrap)
	if err != nil {
		return fmt.Errorf("parse bootstrap peers: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var msgPipeline *pipeline.Pipeline
	onDelivered := func(env envelope.TransportEnvelope) {
		senderCert, ok := knownCerts[env.PGPEnvelope.SenderFingerprint]
		if !ok {
			log.WithField("sender_fingerprint", env.PGPEnvelope.SenderFingerprint).Warn("stored envelope from unknown sender, cannot decrypt yet")
			return
		}
		if msgPipeline == nil {
			return
		}
		if _, err := msgPipeline.Receive(env, senderCert); err != nil {
			log.WithError(err).Warn("failed to decrypt inbound envelope")
		}
	}

	handle, err := overlay.Start(ctx, overlayCfg, onDelivered)
	if err != nil {
		return fmt.Errorf("start overlay: %w", err)
	}
	defer handle.Shutdown()

	msgPipeline = pipeline.New(localDevice, handle, handle.Store())
	msgPipeline.SetKeypair(keypair)

	log.WithField("peer_id", handle.ID()).Info("node started")

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func loadOrCreateIdentity(storageDir, username, password string) (*crypto.Keypair, error) {
	accountPath := filepath.Join(storageDir, "account.json")

	existing, err := os.ReadFile(accountPath)
	if err == nil {
		var account crypto.Account
		if err := json.Unmarshal(existing, &account); err != nil {
			return nil, fmt.Errorf("decode account file: %w", err)
		}
		return crypto.Login(password, &account)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read account file: %w", err)
	}

	keypair, err := crypto.Generate(username)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	account, err := crypto.CreateAccount(username, password, keypair)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	encoded, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode account: %w", err)
	}
	if err := os.WriteFile(accountPath, encoded, 0o600); err != nil {
		return nil, fmt.Errorf("write account file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(storageDir, "username.txt"), []byte(username), 0o600); err != nil {
		return nil, fmt.Errorf("write username file: %w", err)
	}

	return keypair, nil
}

func loadOrCreateDeviceId(storageDir string) (envelope.DeviceId, error) {
	devicePath := filepath.Join(storageDir, "device_id.txt")

	existing, err := os.ReadFile(devicePath)
	if err == nil {
		return uuid.Parse(strings.TrimSpace(string(existing)))
	}
	if !os.IsNotExist(err) {
		return envelope.DeviceId{}, fmt.Errorf("read device id file: %w", err)
	}

	deviceId := uuid.New()
	if err := os.WriteFile(devicePath, []byte(deviceId.String()), 0o600); err != nil {
		return envelope.DeviceId{}, fmt.Errorf("write device id file: %w", err)
	}
	return deviceId, nil
}

// loadKnownCerts builds the set of peer certificates this node can verify
// and decrypt against. It merges two sources: the durable contact list at
// storageDir/simple_contacts.json (each Contact.PublicKey holds an armored
// public key), and, for first-run bootstrapping, loose *.asc files dropped
// into certsDir.
func loadKnownCerts(storageDir, certsDir string) (map[string]*crypto.Keypair, error) {
	certs := make(map[string]*crypto.Keypair)

	contacts, err := store.LoadContacts(storageDir)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	for _, contact := range contacts {
		kp, err := crypto.FromPublic(contact.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("parse contact %s public key: %w", contact.Fingerprint, err)
		}
		certs[kp.Fingerprint()] = kp
	}

	if certsDir == "" {
		return certs, nil
	}
	entries, err := os.ReadDir(certsDir)
	if os.IsNotExist(err) {
		return certs, nil
	}
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".asc") {
			continue
		}
		armored, err := os.ReadFile(filepath.Join(certsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		kp, err := crypto.FromPublic(string(armored))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		certs[kp.Fingerprint()] = kp
	}
	return certs, nil
}

func parseBootstrapPeers(spec string) ([]overlay.BootstrapPeer, error) {
	if spec == "" {
		return nil, nil
	}

	var peers []overlay.BootstrapPeer
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.SplitN(entry, "|", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed bootstrap entry %q, want multiaddr|peerid", entry)
		}
		peers = append(peers, overlay.BootstrapPeer{Multiaddr: parts[0], PeerID: parts[1]})
	}
	return peers, nil
}
