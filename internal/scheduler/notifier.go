package scheduler

import (
	"context"

	"go.uber.org/zap"

	"github.com/lox/weatherreminder/internal/models"
)

// LogNotifier records notifications in the log instead of delivering them.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{log: logger}
}

func (n *LogNotifier) Notify(_ context.Context, sub models.Subscription, loc models.Location, snap models.Snapshot) error {
	fields := []zap.Field{
		zap.Int64("subscription_id", sub.ID),
		zap.String("user_id", sub.UserID),
		zap.String("channel", string(sub.NotificationType)),
		zap.String("location", loc.Name+","+loc.Country),
		zap.String("period", string(sub.ForecastPeriod)),
		zap.Int("points", len(snap)),
	}
	if len(snap) > 0 {
		fields = append(fields,
			zap.Float64("temp", snap[0].Temp),
			zap.String("description", snap[0].Description))
	}
	n.log.Info("notification", fields...)
	return nil
}
