package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Backup codes avoid 0/O/1/I so support never has to disambiguate them
// over the phone.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	backupCodeCount = 10
	backupCodeLen   = 10
)

// newBackupCode returns a code in XXXXX-XXXXX form.
func newBackupCode() (string, error) {
	buf := make([]byte, backupCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	chars := make([]byte, backupCodeLen)
	for i, b := range buf {
		chars[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(chars[:5]) + "-" + string(chars[5:]), nil
}

// canonicalizeBackupCode normalizes user input before hashing: uppercase,
// separators stripped.
func canonicalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return code
}

// hashBackupCode hashes the canonical form. Plaintext codes are returned
// to the user exactly once and never stored.
func hashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(canonicalizeBackupCode(code)))
	return hex.EncodeToString(sum[:])
}
