package storage

// Encryption is an optional adapter encrypting event payloads at rest.
// Both directions must be pure: Decrypt(Encrypt(b)) == b. Length prefixes
// in batch files are over ciphertext.
//
// An Encrypt error drops the single event; a Decrypt error condemns the
// whole batch (deleted, counted as corrupt).
type Encryption interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}
