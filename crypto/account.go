package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// MinPasswordLength is the minimum accepted account password length. The
// original client used 4; a deployment wanting the recommended >=8 can
// enforce it above this package.
const MinPasswordLength = 4

const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltSize      = 16
	nonceSize     = 12
)

// Account is the on-disk, password-protected record for one identity: a
// memory-hard password hash alongside the PGP secret key sealed behind an
// AEAD key derived from the same password with an independent salt.
type Account struct {
	Username           string `json:"username"`
	PasswordHash       string `json:"password_hash"`
	EncryptedSecretKey string `json:"encrypted_secret_key"`
	EncryptionNonce    string `json:"encryption_nonce"`
	KeyDerivationSalt  string `json:"key_derivation_salt"`
	PublicKey          string `json:"public_key"`
	Fingerprint        string `json:"fingerprint"`
}

// CreateAccount hashes password with Argon2 into a PHC string, seals kp's
// exported secret key behind an AEAD key derived from password with a fresh
// 16-byte salt, and returns the resulting Account record.
func CreateAccount(username, password string, kp *Keypair) (*Account, error) {
	log := logrus.WithFields(logrus.Fields{"function": "CreateAccount", "username": username})

	if len(password) < MinPasswordLength {
		return nil, newErr("CreateAccount", ErrInternal, fmt.Errorf("password must be at least %d characters", MinPasswordLength))
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, newErr("CreateAccount", ErrInternal, err)
	}

	secretKey, err := kp.ExportSecret()
	if err != nil {
		return nil, newErr("CreateAccount", ErrInternal, err)
	}
	publicKey, err := kp.ExportPublic()
	if err != nil {
		return nil, newErr("CreateAccount", ErrInternal, err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, newErr("CreateAccount", ErrInternal, err)
	}
	aeadKey := deriveAEADKey(password, salt)

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, newErr("CreateAccount", ErrInternal, err)
	}

	aead, err := chacha20poly1305.New(aeadKey)
	if err != nil {
		return nil, newErr("CreateAccount", ErrInternal, err)
	}
	ciphertext := aead.Seal(nil, nonce, []byte(secretKey), nil)

	account := &Account{
		Username:           username,
		PasswordHash:       passwordHash,
		EncryptedSecretKey: base64.StdEncoding.EncodeToString(ciphertext),
		EncryptionNonce:    base64.StdEncoding.EncodeToString(nonce),
		KeyDerivationSalt:  base64.StdEncoding.EncodeToString(salt),
		PublicKey:          publicKey,
		Fingerprint:        kp.Fingerprint(),
	}

	log.WithField("fingerprint", account.Fingerprint).Info("account created")
	return account, nil
}

// Login verifies password against account's password hash, then re-derives
// the AEAD key from password and account's key_derivation_salt to recover
// the secret keypair. It fails with Crypto(WrongPassword) if the password
// hash does not verify or the AEAD seal does not open.
func Login(password string, account *Account) (*Keypair, error) {
	log := logrus.WithFields(logrus.Fields{"function": "Login", "username": account.Username})

	if !verifyPassword(password, account.PasswordHash) {
		log.Warn("password verification failed")
		return nil, newErr("Login", ErrWrongPassword, nil)
	}

	salt, err := base64.StdEncoding.DecodeString(account.KeyDerivationSalt)
	if err != nil {
		return nil, newErr("Login", ErrInternal, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(account.EncryptionNonce)
	if err != nil {
		return nil, newErr("Login", ErrInternal, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(account.EncryptedSecretKey)
	if err != nil {
		return nil, newErr("Login", ErrInternal, err)
	}

	aeadKey := deriveAEADKey(password, salt)
	aead, err := chacha20poly1305.New(aeadKey)
	if err != nil {
		return nil, newErr("Login", ErrInternal, err)
	}
	secretKeyBytes, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		log.WithError(err).Warn("secret key unseal failed")
		return nil, newErr("Login", ErrWrongPassword, err)
	}

	kp, err := FromSecret(string(secretKeyBytes))
	if err != nil {
		return nil, newErr("Login", ErrInternal, err)
	}
	return kp, nil
}

func deriveAEADKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

// hashPassword produces a PHC-formatted Argon2id string:
// $argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
func hashPassword(password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// verifyPassword parses a PHC argon2id string and recomputes the hash under
// constant-time comparison.
func verifyPassword(password, phc string) bool {
	parts := strings.Split(phc, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false
	}

	var memory, iterations uint32
	var threads uint8
	for _, kv := range strings.Split(parts[3], ",") {
		pair := strings.SplitN(kv, "=", 2)
		if len(pair) != 2 {
			return false
		}
		val, err := strconv.ParseUint(pair[1], 10, 32)
		if err != nil {
			return false
		}
		switch pair[0] {
		case "m":
			memory = uint32(val)
		case "t":
			iterations = uint32(val)
		case "p":
			threads = uint8(val)
		}
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	got := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
