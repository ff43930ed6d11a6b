// Package crypto implements the identity and cryptography primitives of the
// cryptochat node: OpenPGP keypairs, fingerprints, signing, encryption, and
// password-wrapped account storage.
//
// This package provides the cryptographic foundation for cryptochat,
// implementing OpenPGP-based authenticated encryption and signing through
// github.com/ProtonMail/go-crypto, Argon2 password hashing, and a
// ChaCha20-Poly1305 AEAD for at-rest secret key sealing.
//
// # Core Types
//
//   - [Keypair]: an OpenPGP certificate with a signing subkey and a
//     transport-encryption subkey
//   - [Account]: the on-disk account record sealing a keypair's secret
//     material behind a password
//
// # Key Generation
//
//	kp, err := crypto.Generate("alice@cryptochat.example")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fp := kp.Fingerprint()
//
// # Encryption and Signing
//
//	ciphertext, err := crypto.EncryptAndSign(alice, bobCert, []byte("hi"))
//	plaintext, err := crypto.DecryptAndVerify(bob, aliceCert, ciphertext)
//
// # Account Storage
//
//	account, err := crypto.CreateAccount("alice", "correct horse", kp)
//	kp, err := crypto.Login("correct horse", account)
//
// # Thread Safety
//
// A [Keypair] caches its parsed OpenPGP entity; concurrent Sign/Encrypt/
// Decrypt calls on the same Keypair are safe for read-only use but a
// Keypair value should not be mutated concurrently with use.
package crypto
