package services

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/tour_booking/models"
	"github.com/anjiri1684/tour_booking/notifications"
	"github.com/anjiri1684/tour_booking/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ThresholdOutcome struct {
	Confirmed  int  `json:"confirmed"`
	MinReached bool `json:"min_reached_alert_sent"`
	SoldOut    bool `json:"sold_out_alert_sent"`
}

// ThresholdDispatcher tells the operator when a date first reaches its
// minimum group size and when it sells out. Each alert is guarded by a
// set-once timestamp, so it fires at most once per trip date no matter how
// many evaluations run.
type ThresholdDispatcher struct {
	store      *repository.Store
	notifier   notifications.Notifier
	adminEmail string
	logger     *zap.Logger
	now        func() time.Time
}

func NewThresholdDispatcher(store *repository.Store, notifier notifications.Notifier, adminEmail string, logger *zap.Logger) *ThresholdDispatcher {
	return &ThresholdDispatcher{
		store:      store,
		notifier:   notifier,
		adminEmail: adminEmail,
		logger:     logger,
		now:        time.Now,
	}
}

func (d *ThresholdDispatcher) Evaluate(ctx context.Context, tripDateID uuid.UUID) (ThresholdOutcome, error) {
	var out ThresholdOutcome

	date, err := d.store.GetTripDate(ctx, tripDateID)
	if err != nil {
		return out, fmt.Errorf("load trip date: %w", err)
	}

	confirmed, err := d.store.ConfirmedParticipants(ctx, tripDateID)
	if err != nil {
		return out, fmt.Errorf("count confirmed participants: %w", err)
	}
	out.Confirmed = confirmed

	if date.CancelledAt != nil {
		return out, nil
	}

	if date.MinParticipants > 0 && confirmed >= date.MinParticipants && date.MinReachedAt == nil {
		won, err := d.store.MarkMinReached(ctx, tripDateID, d.now())
		if err != nil {
			return out, fmt.Errorf("mark minimum reached: %w", err)
		}
		if won {
			out.MinReached = true
			d.alert(ctx, notifications.KindAdminMinReached, date, confirmed)
		}
	}

	if date.Capacity > 0 && confirmed >= date.Capacity && date.MaxReachedAt == nil {
		won, err := d.store.MarkSoldOut(ctx, tripDateID, d.now())
		if err != nil {
			return out, fmt.Errorf("mark sold out: %w", err)
		}
		if won {
			out.SoldOut = true
			date.Status = models.TripDateSoldOut
			d.alert(ctx, notifications.KindAdminSoldOut, date, confirmed)
		}
	}

	return out, nil
}

// alert never undoes the flag it follows: a lost alert is preferable to a
// duplicated one.
func (d *ThresholdDispatcher) alert(ctx context.Context, kind notifications.Kind, date *models.TripDate, confirmed int) {
	if d.adminEmail == "" {
		d.logger.Warn("No admin email configured, threshold alert dropped",
			zap.String("tripDateId", date.ID.String()), zap.String("kind", string(kind)))
		return
	}

	res := d.notifier.Send(ctx, kind, notifications.Message{
		ToEmail:   d.adminEmail,
		ToName:    "Admin",
		TripDate:  date,
		Confirmed: confirmed,
	})
	if !res.Success {
		d.logger.Error("Threshold alert failed",
			zap.String("tripDateId", date.ID.String()),
			zap.String("kind", string(kind)),
			zap.Error(res.Err))
		return
	}
	d.logger.Info("Threshold alert sent",
		zap.String("tripDateId", date.ID.String()),
		zap.String("kind", string(kind)),
		zap.Int("confirmed", confirmed))
}
