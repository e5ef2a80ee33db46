package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/lucifers-0666/zenopay/internal/domain"
	"github.com/lucifers-0666/zenopay/internal/repository"
	"github.com/lucifers-0666/zenopay/pkg/crypto"
)

// MerchantResolver maps merchant credentials to settlement accounts.
// Credentials are structured records looked up by API key; the routing
// prefix inside the key is decorative and never drives resolution.
type MerchantResolver struct {
	store  repository.Store
	logger *slog.Logger
}

func NewMerchantResolver(store repository.Store, logger *slog.Logger) *MerchantResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &MerchantResolver{store: store, logger: logger}
}

// Resolve authenticates an api key/secret pair and returns the merchant's
// settlement account.
func (r *MerchantResolver) Resolve(ctx context.Context, apiKey, apiSecret string) (*domain.Account, error) {
	cred, err := r.credential(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(cred.Secret), []byte(apiSecret)) != 1 {
		r.logger.Warn("merchant secret mismatch", slog.String("api_key", apiKey))
		return nil, ErrInvalidCredential
	}
	return r.settlementAccount(ctx, cred)
}

// ResolveSigned authenticates a request by its HMAC-SHA256 body signature
// and returns the merchant's settlement account.
func (r *MerchantResolver) ResolveSigned(ctx context.Context, apiKey string, body []byte, signature string) (*domain.Account, error) {
	cred, err := r.credential(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if !crypto.Verify(cred.Secret, body, signature) {
		r.logger.Warn("merchant signature mismatch", slog.String("api_key", apiKey))
		return nil, ErrInvalidCredential
	}
	return r.settlementAccount(ctx, cred)
}

// Enroll creates a credential for the settlement account and returns it,
// secret included. The only time the secret leaves the system is here.
func (r *MerchantResolver) Enroll(ctx context.Context, ownerID string, settlementAccountID uint64) (*domain.MerchantCredential, error) {
	account, err := r.store.GetAccount(ctx, settlementAccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %d", ErrAccountNotFound, settlementAccountID)
		}
		return nil, err
	}
	if !account.IsActive() {
		return nil, ErrAccountInactive
	}

	cred := &domain.MerchantCredential{
		APIKey:              domain.NewAPIKey(account.RoutingCode),
		Secret:              strings.ReplaceAll(uuid.NewString(), "-", ""),
		MerchantOwnerID:     ownerID,
		SettlementAccountID: account.ID,
	}
	if err := r.store.PutCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("credential store failed: %w", err)
	}

	r.logger.Info("merchant enrolled",
		slog.String("merchant_owner_id", ownerID),
		slog.Uint64("settlement_account_id", account.ID))
	return cred, nil
}

func (r *MerchantResolver) credential(ctx context.Context, apiKey string) (*domain.MerchantCredential, error) {
	cred, err := r.store.GetCredential(ctx, apiKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, err
	}
	return cred, nil
}

func (r *MerchantResolver) settlementAccount(ctx context.Context, cred *domain.MerchantCredential) (*domain.Account, error) {
	account, err := r.store.GetAccount(ctx, cred.SettlementAccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: settlement account %d", ErrAccountNotFound, cred.SettlementAccountID)
		}
		return nil, err
	}
	if !account.IsActive() {
		return nil, ErrAccountInactive
	}
	return account, nil
}
