package authserver

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-login/internal/validation"
)

// VerifyUserCode looks up a pending authorization by user code. Checks run in
// order: format, store errors, existence, expiry, decision state, then the
// attempt limit of RFC 8628 section 5.1. Every successful lookup counts as
// an attempt.
func (f *Flow) VerifyUserCode(ctx context.Context, userCode string) (*DeviceCode, error) {
	if err := validation.ValidateUserCode(userCode); err != nil {
		return nil, NewError(ErrorCodeInvalidRequest, "Invalid user code format: "+err.Error())
	}

	code, err := f.store.GetDeviceCodeByUserCode(ctx, userCode)
	if err != nil {
		f.logger.WithError(err).Error("Failed to look up user code")
		return nil, NewError(ErrorCodeServerError, "Error validating code: internal error")
	}
	if code == nil {
		return nil, NewError(ErrorCodeInvalidRequest, "Invalid user code: code not found")
	}

	if time.Now().After(code.ExpiresAt) {
		return nil, NewError(ErrorCodeExpiredToken, "Code has expired")
	}

	if code.Status != StatusPending {
		return nil, NewError(ErrorCodeInvalidRequest, "Code has already been used")
	}

	attempts, err := f.store.CountAttempts(ctx, code.DeviceCode, f.attemptWindow)
	if err != nil {
		f.logger.WithError(err).Error("Failed to count verification attempts")
		return nil, NewError(ErrorCodeServerError, "Error validating code: internal error")
	}
	if attempts >= f.maxAttempts {
		return nil, NewError(ErrorCodeSlowDown, "Too many verification attempts, please wait")
	}

	if err := f.store.RecordAttempt(ctx, code.DeviceCode); err != nil {
		f.logger.WithError(err).Error("Failed to record verification attempt")
		return nil, NewError(ErrorCodeServerError, "Error validating code: internal error")
	}

	code.ExpiresIn = int(time.Until(code.ExpiresAt).Seconds())
	return code, nil
}

// Approve records the user's consent. The device's next poll receives tokens
// issued to subject.
func (f *Flow) Approve(ctx context.Context, userCode, subject string) (*DeviceCode, error) {
	if subject == "" {
		return nil, NewError(ErrorCodeInvalidRequest, "subject is required")
	}
	return f.decide(ctx, userCode, StatusApproved, subject)
}

// Deny records the user's refusal. The device's next poll receives access_denied.
func (f *Flow) Deny(ctx context.Context, userCode string) (*DeviceCode, error) {
	return f.decide(ctx, userCode, StatusDenied, "")
}

func (f *Flow) decide(ctx context.Context, userCode string, status Status, subject string) (*DeviceCode, error) {
	code, err := f.VerifyUserCode(ctx, userCode)
	if err != nil {
		return nil, err
	}

	decided, err := f.store.DecideDeviceCode(ctx, code.DeviceCode, status, subject)
	if err != nil {
		f.logger.WithError(err).Error("Failed to save decision")
		return nil, NewError(ErrorCodeServerError, "Error saving decision: internal error")
	}
	if decided == nil {
		return nil, NewError(ErrorCodeInvalidRequest, "Code has already been used")
	}
	decided.ExpiresIn = code.ExpiresIn
	code = decided

	f.observer.Verified(string(status))
	f.logger.WithFields(log.Fields{
		"client_id": code.ClientID,
		"user_code": code.UserCode,
		"decision":  status,
	}).Info("Device authorization decided")

	return code, nil
}
