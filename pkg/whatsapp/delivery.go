package whatsapp

import (
	"context"
	"errors"
	"time"

	"github.com/gdbrns/autoservice-whatsapp/pkg/log"
	"github.com/gdbrns/autoservice-whatsapp/pkg/validation"
)

const defaultRetries = 3

var errSessionRetired = errors.New("session was replaced during delivery")

// Send delivers one text message from the user's session. retries <= 0
// selects the default of three attempts. Every failure is a *SendError.
func (r *Registry) Send(ctx context.Context, userID string, phone string, message string, retries int) error {
	s := r.lookup(userID)
	if s == nil {
		return newSendError(KindClientNotInitialized, nil)
	}
	if !s.IsReady() {
		return newSendError(KindClientNotReady, nil)
	}
	if state := s.transport.ConnectionState(); state != ConnConnected {
		s.markReauthRequired()
		r.scheduleRebuild(s, rebuildReauth)
		return newSendError(KindNotConnected, errors.New("connection state "+string(state)))
	}

	normalized, err := validation.NormalizePhone(phone)
	if err != nil {
		return newSendError(KindInvalidPhone, err)
	}

	return r.deliver(ctx, s, normalized, message, retries)
}

func (r *Registry) deliver(ctx context.Context, s *Session, phone string, message string, retries int) error {
	if retries <= 0 {
		retries = defaultRetries
	}
	logger := log.Session(s.UserID, "send").WithField("phone", log.MaskPhone(phone))

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if s.isRetired() {
			return newSendError(KindSessionFatal, errSessionRetired)
		}

		err := r.attempt(ctx, s, phone, message)
		if err == nil {
			logger.WithField("attempt", attempt).Info("Message sent")
			return nil
		}
		lastErr = err

		class := Classify(err)
		logger.WithField("attempt", attempt).WithField("class", class.String()).WithError(err).Warn("Send attempt failed")

		switch class {
		case ClassSessionFatal:
			s.markReauthRequired()
			r.scheduleRebuild(s, rebuildReauth)
			return newSendError(KindSessionFatal, err)
		case ClassInvalidRecipient:
			return newSendError(KindInvalidRecipient, err)
		case ClassRejected:
			return newSendError(KindRejected, err)
		}

		if attempt == retries {
			break
		}
		if err := sleepContext(ctx, time.Duration(attempt)*r.cfg.RetryBackoff); err != nil {
			return newSendError(KindDeliveryFailed, err)
		}
		if s.isRetired() {
			return newSendError(KindSessionFatal, errSessionRetired)
		}
		if state := s.transport.ConnectionState(); state != ConnConnected {
			r.dispatch(s, DisconnectedEvent("connection lost during send"))
			return newSendError(KindSessionFatal, errors.New("connection state "+string(state)))
		}
	}

	return newSendError(KindDeliveryFailed, lastErr)
}

// attempt races one transport send against the per-attempt timeout.
func (r *Registry) attempt(ctx context.Context, s *Session, phone string, message string) error {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.transport.SendText(attemptCtx, phone, message)
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return errAttemptTimeout
		}
		return err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return errAttemptTimeout
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
