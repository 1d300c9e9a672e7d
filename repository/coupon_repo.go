package repository

import (
	"context"
	"strings"

	"github.com/anjiri1684/tour_booking/models"
)

func (s *Store) CreateCoupon(ctx context.Context, c *models.Coupon) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	return s.with(ctx).Create(c).Error
}

func (s *Store) FindCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := s.with(ctx).First(&c, "code = ?", strings.ToUpper(strings.TrimSpace(code))).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}
