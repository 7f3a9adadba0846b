package payment

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zynpay/zynpay_service/pkg/crypto"
)

var (
	paymentIDPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	addressPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// DerivePaymentID salts reference with the time, a random number and a uuid
// prefix and hashes it to a bytes32 id, so two sends with the same reference
// never collide.
func DerivePaymentID(reference string) string {
	salted := fmt.Sprintf("%s-%d-%d-%s",
		reference,
		time.Now().UnixMilli(),
		rand.IntN(10000000),
		uuid.NewString()[:8])
	return crypto.Keccak256Hex([]byte(salted))
}

// NormalizePaymentID accepts a 0x-prefixed 32-byte hex id as-is and hashes any
// other string.
func NormalizePaymentID(id string) string {
	id = strings.TrimSpace(id)
	if paymentIDPattern.MatchString(id) {
		return strings.ToLower(id)
	}
	return crypto.Keccak256Hex([]byte(id))
}

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}
