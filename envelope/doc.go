// Package envelope implements the boundary between a plaintext message the
// application authored and the transport envelope that travels the overlay:
// wrapping signs and encrypts a PlaintextMessage into a TransportEnvelope,
// and unwrapping reverses that while rejecting any envelope whose header
// metadata disagrees with what was actually encrypted inside.
package envelope
