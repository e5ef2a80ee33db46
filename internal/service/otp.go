package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lucifers-0666/zenopay/internal/domain"
	"github.com/lucifers-0666/zenopay/internal/repository"
)

const codeLength = 6

// Notifier hands a message to the delivery pipeline. Delivery is
// fire-and-forget; a failure never aborts the operation that issued the
// code.
type Notifier interface {
	Enqueue(destination, subject, body string)
}

// ChallengeService issues and verifies single-use numeric authorization
// codes. A challenge is Issued, then either Verified (terminal), Expired
// (terminal, time-driven) or left in place after a failed attempt so the
// caller may retry until expiry.
type ChallengeService struct {
	store    repository.ChallengeStore
	notifier Notifier
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewChallengeService(store repository.ChallengeStore, notifier Notifier, ttl time.Duration, logger *slog.Logger) *ChallengeService {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ChallengeService{
		store:    store,
		notifier: notifier,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Issue generates a fresh code for the subject, replacing any pending
// challenge, and queues it for delivery to destination.
func (s *ChallengeService) Issue(ctx context.Context, subject, destination string) (string, error) {
	code := randomCode()
	issued := s.now()
	ch := domain.Challenge{
		Code:      code,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(s.ttl),
	}
	if err := s.store.Put(ctx, subject, ch, s.ttl); err != nil {
		return "", fmt.Errorf("challenge store failed: %w", err)
	}

	if s.notifier != nil && destination != "" {
		s.notifier.Enqueue(destination, "Your verification code",
			fmt.Sprintf("Use code %s to authorize your transaction. It expires in %d minutes.",
				code, int(s.ttl.Minutes())))
	}

	s.logger.Info("authorization challenge issued",
		slog.String("subject", subject),
		slog.Time("expires_at", ch.ExpiresAt))
	return code, nil
}

// Verify succeeds only for a non-expired, pending challenge whose code
// matches exactly, and invalidates it immediately so it can never be
// verified twice. A mismatch leaves the challenge in place; an expired
// entry is purged.
func (s *ChallengeService) Verify(ctx context.Context, subject, code string) error {
	ch, err := s.store.Get(ctx, subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrChallengeNotFound
		}
		return fmt.Errorf("challenge lookup failed: %w", err)
	}

	if ch.ExpiredAt(s.now()) {
		_ = s.store.Invalidate(ctx, subject)
		return ErrChallengeExpired
	}
	if subtle.ConstantTimeCompare([]byte(ch.Code), []byte(code)) != 1 {
		s.logger.Warn("authorization code mismatch", slog.String("subject", subject))
		return ErrCodeMismatch
	}

	if err := s.store.Invalidate(ctx, subject); err != nil {
		return fmt.Errorf("challenge invalidation failed: %w", err)
	}
	return nil
}

func randomCode() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	n := binary.BigEndian.Uint64(b[:]) % 1_000_000
	return fmt.Sprintf("%0*d", codeLength, n)
}
