package id

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// Base62 alphabet: 0-9, A-Z, a-z
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// DefaultLength is the default length for generated short IDs
	DefaultLength = 12

	// TransactionPrefix marks internal payment transaction ids. No separator is
	// used because several providers reject anything but letters and digits.
	TransactionPrefix = "txn"
	transactionLength = 20
)

// Generate creates a cryptographically random Base62 id of the given length.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}

	result := make([]byte, length)
	alphabetLen := big.NewInt(int64(len(alphabet)))
	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		result[i] = alphabet[num.Int64()]
	}
	return string(result), nil
}

// NewTransactionID returns an id like "txn4fK2...", 23 characters long, which
// fits the shortest provider limit (PayU txnid, 25 chars).
func NewTransactionID() (string, error) {
	s, err := Generate(transactionLength)
	if err != nil {
		return "", err
	}
	return TransactionPrefix + s, nil
}

// IsTransactionID reports whether s has the shape produced by NewTransactionID.
func IsTransactionID(s string) bool {
	if len(s) != len(TransactionPrefix)+transactionLength || !strings.HasPrefix(s, TransactionPrefix) {
		return false
	}
	for i := len(TransactionPrefix); i < len(s); i++ {
		if !strings.ContainsRune(alphabet, rune(s[i])) {
			return false
		}
	}
	return true
}
