package service

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/fjod/go_cart/commerce-service/internal/logger"
	"github.com/fjod/go_cart/commerce-service/internal/repository"
	"github.com/fjod/go_cart/commerce-service/internal/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type LoyaltyService struct {
	repo   repository.LoyaltyRepository
	logger *zap.Logger
	opts   options
}

func NewLoyaltyService(repo repository.LoyaltyRepository, logger *zap.Logger, opts ...Option) *LoyaltyService {
	return &LoyaltyService{
		repo:   repo,
		logger: logger,
		opts:   buildOptions(opts),
	}
}

func (s *LoyaltyService) GetBalance(ctx context.Context, userID string) (account *domain.LoyaltyAccount, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "LoyaltyService.GetBalance",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { endSpan(ctx, span, s.logger, "get balance", err, zap.String("user_id", userID)) }()

	if err := validation.UserID(userID); err != nil {
		return nil, err
	}

	account, err = s.repo.GetAccount(ctx, userID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, domain.Internal(err, "load loyalty account")
	}
	return account, nil
}

// Redeem debits points from an existing account. It never creates one.
// Failing with domain.InsufficientPointsError leaves the account unchanged.
func (s *LoyaltyService) Redeem(ctx context.Context, userID string, points int64, description string) (account *domain.LoyaltyAccount, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "LoyaltyService.Redeem", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int64("points", points),
	))
	defer func() {
		s.opts.metrics.LoyaltyOperation("redeem", err)
		endSpan(ctx, span, s.logger, "redeem points", err, zap.String("user_id", userID), zap.Int64("points", points))
	}()

	input := validation.RedeemInput{UserID: userID, Points: points, Description: description}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	account, err = s.mutate(ctx, userID, false, func(a *domain.LoyaltyAccount) (bool, error) {
		return true, a.Redeem(points, description, s.opts.now())
	})
	if err == nil {
		s.opts.metrics.PointsMoved(domain.TransactionRedeemed, points)
	}
	return account, err
}

// Earn credits points, creating the account on the user's first grant. A
// non-empty reference identifies the triggering event; a second Earn with the
// same reference returns the account without crediting again.
func (s *LoyaltyService) Earn(ctx context.Context, userID string, points int64, description, reference string) (account *domain.LoyaltyAccount, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "LoyaltyService.Earn", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int64("points", points),
		attribute.String("reference", reference),
	))
	defer func() {
		s.opts.metrics.LoyaltyOperation("earn", err)
		endSpan(ctx, span, s.logger, "earn points", err, zap.String("user_id", userID), zap.String("reference", reference))
	}()

	input := validation.EarnInput{UserID: userID, Points: points, Description: description, Reference: reference}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	credited := false
	account, err = s.mutate(ctx, userID, true, func(a *domain.LoyaltyAccount) (bool, error) {
		changed, err := a.Earn(points, description, reference, s.opts.now())
		credited = changed
		return changed, err
	})
	if err != nil {
		return nil, err
	}

	if credited {
		s.opts.metrics.PointsMoved(domain.TransactionEarned, points)
	} else {
		logger.Info(ctx, s.logger, "points already credited for reference",
			zap.String("user_id", userID), zap.String("reference", reference))
	}
	return account, nil
}

// mutate is the atomic read-modify-write on one loyalty account. fn reports
// whether it changed the account; unchanged accounts are returned unsaved.
func (s *LoyaltyService) mutate(
	ctx context.Context,
	userID string,
	create bool,
	fn func(*domain.LoyaltyAccount) (bool, error),
) (*domain.LoyaltyAccount, error) {
	for attempt := 1; attempt <= s.opts.maxAttempts; attempt++ {
		account, err := s.repo.GetAccount(ctx, userID)
		switch {
		case errors.Is(err, repository.ErrAccountNotFound):
			if !create {
				return nil, domain.ErrAccountNotFound
			}
			account = domain.NewLoyaltyAccount(userID, s.opts.now())
		case err != nil:
			return nil, domain.Internal(err, "load loyalty account")
		}

		changed, err := fn(account)
		if err != nil {
			return nil, err
		}
		if !changed {
			return account, nil
		}

		err = s.repo.SaveAccount(ctx, account)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, domain.Internal(err, "save loyalty account")
		}

		s.opts.metrics.VersionConflict("loyalty")
		logger.Debug(ctx, s.logger, "loyalty version conflict, retrying",
			zap.String("user_id", userID), zap.Int("attempt", attempt))
	}

	return nil, domain.Internal(
		errors.Wrapf(domain.ErrConcurrentUpdate, "loyalty account of user %s after %d attempts", userID, s.opts.maxAttempts),
		"save loyalty account")
}
