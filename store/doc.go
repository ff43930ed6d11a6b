// Package store implements the node's durable persistence: an embedded
// ordered key-value database (go.etcd.io/bbolt) holding pending outbound
// envelopes with per-peer progress, inbound envelopes keyed by message id,
// and delivery receipts — plus AEAD-sealed JSON blobs for local
// conversation and chat history, and a plain JSON contact list.
//
// Every mutation commits synchronously and is durable (fsync'd) before the
// call returns; bbolt's own write-ahead log handles crash recovery on the
// next Open. The returned [Store] is safe for concurrent use: bbolt
// serializes writers internally and allows unlimited concurrent readers.
package store
