package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lox/weatherreminder/internal/models"
)

const subscriptionColumns = `id, user_id, location_id, interval_hours, forecast_period, notification_type, is_active, last_notified_at, created_at, updated_at`

func scanSubscription(row interface{ Scan(...any) error }) (models.Subscription, error) {
	var (
		sub    models.Subscription
		period string
		notify string
	)
	err := row.Scan(&sub.ID, &sub.UserID, &sub.LocationID, &sub.IntervalHours, &period, &notify,
		&sub.Active, &sub.LastNotifiedAt, &sub.CreatedAt, &sub.UpdatedAt)
	sub.ForecastPeriod = models.Period(period)
	sub.NotificationType = models.NotificationType(notify)
	return sub, err
}

func (s *Store) CreateSubscription(ctx context.Context, sub models.Subscription) (models.Subscription, error) {
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, location_id, interval_hours, forecast_period, notification_type, is_active, last_notified_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sub.UserID, sub.LocationID, sub.IntervalHours, string(sub.ForecastPeriod), string(sub.NotificationType),
		sub.Active, sub.LastNotifiedAt, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Subscription{}, ErrDuplicateSubscription
		}
		return models.Subscription{}, fmt.Errorf("insert subscription: %w", err)
	}
	sub.ID, err = res.LastInsertId()
	if err != nil {
		return models.Subscription{}, err
	}
	return sub, nil
}

// GetSubscription returns the subscription only when it belongs to userID.
func (s *Store) GetSubscription(ctx context.Context, userID string, id int64) (models.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Subscription{}, ErrSubscriptionNotFound
	}
	return sub, err
}

func (s *Store) ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectSubscriptions(rows)
}

// UpdateSubscription writes the mutable fields of sub. Ownership is
// enforced through sub.UserID.
func (s *Store) UpdateSubscription(ctx context.Context, sub models.Subscription) (models.Subscription, error) {
	sub.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET
			interval_hours = ?,
			forecast_period = ?,
			notification_type = ?,
			is_active = ?,
			updated_at = ?
		WHERE id = ? AND user_id = ?
	`, sub.IntervalHours, string(sub.ForecastPeriod), string(sub.NotificationType), sub.Active, sub.UpdatedAt, sub.ID, sub.UserID)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("update subscription %d: %w", sub.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Subscription{}, ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Store) DeleteSubscription(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete subscription %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// DueSubscriptions returns active subscriptions whose interval has
// elapsed at now.
func (s *Store) DueSubscriptions(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	active, err := collectSubscriptions(rows)
	if err != nil {
		return nil, err
	}

	var due []models.Subscription
	for _, sub := range active {
		if sub.IsDue(now) {
			due = append(due, sub)
		}
	}
	return due, nil
}

func (s *Store) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET last_notified_at = ? WHERE id = ?`, at.UTC(), id)
	return err
}

func collectSubscriptions(rows *sql.Rows) ([]models.Subscription, error) {
	defer rows.Close()
	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
