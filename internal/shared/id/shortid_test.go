package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_LengthAndAlphabet(t *testing.T) {
	s, err := Generate(32)
	require.NoError(t, err)
	assert.Len(t, s, 32)
	for _, r := range s {
		assert.Contains(t, alphabet, string(r))
	}
}

func TestNewTransactionID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		txnID, err := NewTransactionID()
		require.NoError(t, err)
		assert.True(t, IsTransactionID(txnID), txnID)
		assert.LessOrEqual(t, len(txnID), 25)
		_, dup := seen[txnID]
		require.False(t, dup)
		seen[txnID] = struct{}{}
	}
}

func TestIsTransactionID_Rejects(t *testing.T) {
	for _, s := range []string{"", "txn", "txn_abcdefghijklmnopqrs", "abc12345678901234567890", "txnABCDEFGHIJKLMNOPQ-T"} {
		assert.False(t, IsTransactionID(s), s)
	}
}
