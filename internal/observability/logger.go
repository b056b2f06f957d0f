package observability

import (
	"go-oms/pkg/models"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
}

func InitLogger(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
}

func GetLogger() *logrus.Logger {
	return logger
}

func WithField(key string, value interface{}) *logrus.Entry {
	return logger.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return logger.WithFields(fields)
}

// HeaderFields returns the system header of a message as log fields.
func HeaderFields(h *models.Header) logrus.Fields {
	return logrus.Fields{
		"destination":    h.Destination(),
		"message_id":     h.MessageID(),
		"born_timestamp": h.BornTimestamp(),
		"born_host":      h.BornHost(),
		"priority":       h.Priority(),
		"durability":     h.Durability().String(),
		"delivery_count": h.DeliveryCount(),
		"compression":    h.Compression().String(),
	}
}

// NewZapLogger builds the production zap logger handed to transports.
func NewZapLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
