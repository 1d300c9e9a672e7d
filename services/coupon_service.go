package services

import (
	"context"
	"errors"
	"time"

	"github.com/anjiri1684/tour_booking/repository"
)

type CouponResult struct {
	Valid       bool
	PercentOff  int
	Description string
	Reason      string
}

type CouponValidator interface {
	Validate(ctx context.Context, code string, participants int) (CouponResult, error)
}

// CouponService validates codes against the coupons table. Rejections come
// back as a result with a reason; only storage failures are errors.
type CouponService struct {
	store *repository.Store
	now   func() time.Time
}

func NewCouponService(store *repository.Store) *CouponService {
	return &CouponService{store: store, now: time.Now}
}

func (s *CouponService) Validate(ctx context.Context, code string, participants int) (CouponResult, error) {
	c, err := s.store.FindCoupon(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return CouponResult{Reason: "unknown code"}, nil
	}
	if err != nil {
		return CouponResult{}, err
	}

	switch {
	case !c.Active:
		return CouponResult{Reason: "code is no longer active"}, nil
	case c.ExpiresAt != nil && s.now().After(*c.ExpiresAt):
		return CouponResult{Reason: "code has expired"}, nil
	case c.MaxParticipants != nil && participants > *c.MaxParticipants:
		return CouponResult{Reason: "too many participants for this code"}, nil
	case c.PercentOff <= 0 || c.PercentOff > 100:
		return CouponResult{Reason: "code is misconfigured"}, nil
	}

	return CouponResult{Valid: true, PercentOff: c.PercentOff, Description: c.Description}, nil
}
