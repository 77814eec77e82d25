package logging

import (
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// ToLogrus renders Fields as logrus.Fields for the MAL's logrus loggers.
func (f Fields) ToLogrus() logrus.Fields {
	return logrus.Fields(f)
}

// ToZap renders Fields as zap.Field slices for the SAD's zap loggers.
func (f Fields) ToZap() []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
