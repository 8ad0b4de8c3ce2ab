package log

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/gdbrns/autoservice-whatsapp/pkg/env"
)

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
		ForceColors:     true,
	}
	level, err := logrus.ParseLevel(env.GetEnvStringOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	return l
}

func Logger() *logrus.Logger {
	return logger
}

func Print(c *fiber.Ctx) *logrus.Entry {
	if c == nil {
		return logger.WithFields(logrus.Fields{})
	}

	remoteIP := c.IP()
	if v, ok := c.Locals("remote_ip").(string); ok && v != "" {
		remoteIP = v
	}
	fields := logrus.Fields{
		"remote_ip": remoteIP,
		"method":    c.Method(),
		"uri":       c.OriginalURL(),
	}
	if v, ok := c.Locals("request_id").(string); ok && v != "" {
		fields["request_id"] = v
	}
	return logger.WithFields(fields)
}

// Session returns an entry scoped to one user's messaging session.
func Session(userID string, op string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"user_id": userID,
		"op":      op,
	})
}

// MaskPhone hides the last four digits of a phone number for log output.
func MaskPhone(phone string) string {
	if len(phone) < 4 {
		return phone
	}
	return phone[0:len(phone)-4] + "xxxx"
}

type waLogger struct {
	entry *logrus.Entry
}

// WhatsMeow adapts the shared logger to the transport's logging interface.
func WhatsMeow(module string) waLog.Logger {
	return &waLogger{entry: logger.WithField("module", module)}
}

func (l *waLogger) Warnf(msg string, args ...interface{})  { l.entry.Warnf(msg, args...) }
func (l *waLogger) Errorf(msg string, args ...interface{}) { l.entry.Errorf(msg, args...) }
func (l *waLogger) Infof(msg string, args ...interface{})  { l.entry.Debugf(msg, args...) }
func (l *waLogger) Debugf(msg string, args ...interface{}) { l.entry.Tracef(msg, args...) }

func (l *waLogger) Sub(module string) waLog.Logger {
	current, _ := l.entry.Data["module"].(string)
	return &waLogger{entry: l.entry.WithField("module", strings.TrimPrefix(current+"/"+module, "/"))}
}
