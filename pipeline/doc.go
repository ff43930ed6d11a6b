// Package pipeline coordinates encryption, overlay publishing, and receipt
// bookkeeping for a single device's outgoing and incoming messages. It is
// the layer a UI or CLI talks to: everything below it (envelope framing,
// replication, persistence) is an implementation detail.
package pipeline
