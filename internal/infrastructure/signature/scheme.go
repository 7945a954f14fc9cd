package signature

import (
	"fmt"
	"strings"
)

type Scheme string

const (
	// SchemeESewa is HMAC-SHA256/base64 over the fields listed in signed_field_names.
	SchemeESewa Scheme = "esewa"
	// SchemePayURequest is SHA-512/hex over the forward chain.
	SchemePayURequest Scheme = "payu_request"
	// SchemePayUResponse is SHA-512/hex over the reverse chain.
	SchemePayUResponse Scheme = "payu_response"
)

// DefaultESewaSignedFields are the fields the request form signs, and the
// canonical set when a form does not name its signed fields. Callback
// verification never relies on this default.
var DefaultESewaSignedFields = []string{"total_amount", "transaction_uuid", "product_code"}

// Secrets are the credentials a scheme signs with. Key is the public
// merchant key where the scheme needs one.
type Secrets struct {
	Key    string
	Secret string
}

type scheme struct {
	canonical func(fields map[string]string, s Secrets) (string, error)
	digest    func(canonical string, s Secrets) string
	normalise func(sig string) string
}

var schemes = map[Scheme]scheme{
	SchemeESewa: {
		canonical: func(fields map[string]string, _ Secrets) (string, error) {
			names := DefaultESewaSignedFields
			if listed := fields["signed_field_names"]; listed != "" {
				names = strings.Split(listed, ",")
			}
			return JoinFields(names, fields, ",")
		},
		digest:    func(c string, s Secrets) string { return HMACSHA256Base64(s.Secret, c) },
		normalise: strings.TrimSpace,
	},
	SchemePayURequest: {
		canonical: func(fields map[string]string, s Secrets) (string, error) {
			return ForwardChain(s.Key, s.Secret, fields), nil
		},
		digest:    func(c string, _ Secrets) string { return SHA512Hex(c) },
		normalise: func(sig string) string { return strings.ToLower(strings.TrimSpace(sig)) },
	},
	SchemePayUResponse: {
		canonical: func(fields map[string]string, s Secrets) (string, error) {
			return ReverseChain(s.Key, s.Secret, fields), nil
		},
		digest:    func(c string, _ Secrets) string { return SHA512Hex(c) },
		normalise: func(sig string) string { return strings.ToLower(strings.TrimSpace(sig)) },
	},
}

func lookup(name Scheme) (scheme, error) {
	s, ok := schemes[name]
	if !ok {
		return scheme{}, fmt.Errorf("unknown signature scheme %q", name)
	}
	return s, nil
}

// Canonical returns the exact string that name signs for fields.
func Canonical(name Scheme, fields map[string]string, secrets Secrets) (string, error) {
	s, err := lookup(name)
	if err != nil {
		return "", err
	}
	return s.canonical(fields, secrets)
}

// Sign computes the signature of fields under name.
func Sign(name Scheme, fields map[string]string, secrets Secrets) (string, error) {
	s, err := lookup(name)
	if err != nil {
		return "", err
	}
	c, err := s.canonical(fields, secrets)
	if err != nil {
		return "", err
	}
	return s.digest(c, secrets), nil
}

// Verify recomputes the signature and compares it with declared in constant
// time. It returns ErrSignatureMissing for an empty declared value and an
// error matching ErrSignatureInvalid on any mismatch.
func Verify(name Scheme, fields map[string]string, secrets Secrets, declared string) error {
	s, err := lookup(name)
	if err != nil {
		return err
	}
	declared = s.normalise(declared)
	if declared == "" {
		return ErrSignatureMissing
	}
	c, err := s.canonical(fields, secrets)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !Equal(s.digest(c, secrets), declared) {
		return ErrSignatureInvalid
	}
	return nil
}
