package assessment

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

// DerivePassword produces the deterministic per-user password the credential
// exchange expects. Same user ref and secret always derive the same value, so
// re-running settlement for a session re-authenticates as the same account.
func DerivePassword(userRef, secret string) string {
	key := pbkdf2.Key([]byte(userRef), []byte(secret), 4096, 16, sha256.New)
	return hex.EncodeToString(key)
}
