package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"mentor_match/internal/infra/config"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.AppConfig
		wantLevel logrus.Level
		wantJSON  bool
	}{
		{"production json", config.AppConfig{LogLevel: "warn", Environment: "production"}, logrus.WarnLevel, true},
		{"staging json", config.AppConfig{LogLevel: "debug", Environment: "Staging"}, logrus.DebugLevel, true},
		{"development text", config.AppConfig{LogLevel: "info", Environment: "development"}, logrus.InfoLevel, false},
		{"invalid level falls back", config.AppConfig{LogLevel: "loud", Environment: "development"}, logrus.InfoLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Init(&tt.cfg)
			assert.Equal(t, tt.wantLevel, Log.GetLevel())
			_, isJSON := Log.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.wantJSON, isJSON)
		})
	}
}

func TestComponent(t *testing.T) {
	entry := Component("scheduler")
	assert.Equal(t, "scheduler", entry.Data["component"])
}
