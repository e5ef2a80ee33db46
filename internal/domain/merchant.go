package domain

import (
	"strings"

	"github.com/google/uuid"
)

// RoutingPrefixLen is the number of leading characters of an account's
// routing code embedded in a merchant API key. Resolution never slices the
// key; settlement accounts are found through the credential record. The
// prefix exists only so support staff can eyeball which institution a key
// belongs to.
const RoutingPrefixLen = 6

// MerchantCredential maps an opaque API key to the merchant's settlement
// account. The credential is read-only to the money-movement core.
type MerchantCredential struct {
	APIKey              string `json:"api_key"`
	Secret              string `json:"-"`
	MerchantOwnerID     string `json:"merchant_owner_id"`
	SettlementAccountID uint64 `json:"settlement_account_id"`
}

// NewAPIKey builds a merchant API key as routing prefix plus a random
// suffix.
func NewAPIKey(routingCode string) string {
	prefix := routingCode
	if len(prefix) > RoutingPrefixLen {
		prefix = prefix[:RoutingPrefixLen]
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + suffix
}
