// Package signature computes and verifies provider message signatures. Each
// canonicalisation is a separate function so the exact string that was
// signed can be unit tested and logged during incident review.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/orris-inc/paygate/internal/domain/payment"
)

var (
	ErrSignatureInvalid = payment.ErrSignatureInvalid
	ErrSignatureMissing = fmt.Errorf("%w: signature missing", payment.ErrSignatureInvalid)
	ErrMissingField     = errors.New("signed field missing from payload")
)

// JoinFields renders names as "name=value" pairs joined by delim, in the
// order given. Every name must be present in fields.
func JoinFields(names []string, fields map[string]string, delim string) (string, error) {
	parts := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		v, ok := fields[name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingField, name)
		}
		parts = append(parts, name+"="+v)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: no signed fields", ErrMissingField)
	}
	return strings.Join(parts, delim), nil
}

// ForwardChain is the request hash input of a pipe-delimited hash chain:
// key|txnid|amount|productinfo|firstname|email|udf1..udf5|<5 reserved>|salt.
func ForwardChain(key, salt string, fields map[string]string) string {
	parts := []string{
		key,
		fields["txnid"],
		fields["amount"],
		fields["productinfo"],
		fields["firstname"],
		fields["email"],
		fields["udf1"], fields["udf2"], fields["udf3"], fields["udf4"], fields["udf5"],
		"", "", "", "", "",
		salt,
	}
	return strings.Join(parts, "|")
}

// ReverseChain is the response hash input, the request order reversed with
// the status inserted after the salt:
// [additionalCharges|]salt|status|<5 reserved>|udf5..udf1|email|firstname|productinfo|amount|txnid|key.
func ReverseChain(key, salt string, fields map[string]string) string {
	parts := []string{
		salt,
		fields["status"],
		"", "", "", "", "",
		fields["udf5"], fields["udf4"], fields["udf3"], fields["udf2"], fields["udf1"],
		fields["email"],
		fields["firstname"],
		fields["productinfo"],
		fields["amount"],
		fields["txnid"],
		key,
	}
	chain := strings.Join(parts, "|")
	if charges := fields["additionalCharges"]; charges != "" {
		chain = charges + "|" + chain
	}
	return chain
}

// HMACSHA256Base64 returns the base64 encoded HMAC-SHA256 of message.
func HMACSHA256Base64(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SHA512Hex returns the lowercase hex SHA-512 of message.
func SHA512Hex(message string) string {
	sum := sha512.Sum512([]byte(message))
	return hex.EncodeToString(sum[:])
}

// Equal compares two signatures in constant time.
func Equal(expected, declared string) bool {
	return hmac.Equal([]byte(expected), []byte(declared))
}
