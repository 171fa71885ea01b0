package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

// Attribute keys shared across packages.
const (
	KeyOperation = "operation"
	KeyService   = "service"
	KeyRecord    = "record_id"
	KeyUserHash  = "user_hash"
	KeyPhoneHash = "phone_hash"
	KeyError     = "error"
	KeyEvent     = "event_id"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithService returns a logger with the service attribute set.
func WithService(logger *slog.Logger, service string) *slog.Logger {
	return logger.With(slog.String(KeyService, service))
}

func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

func Service(svc string) slog.Attr {
	return slog.String(KeyService, svc)
}

func Record(recordID string) slog.Attr {
	return slog.String(KeyRecord, recordID)
}

func Event(eventID string) slog.Attr {
	return slog.String(KeyEvent, eventID)
}

// Err returns an error attribute. A nil error yields an empty group, which
// slog drops, so Err(maybeNil) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

func hashWithPrefix(prefix, value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(sum[:8])
}

// AnonymizeEmail returns a stable hash of email so log lines can be
// correlated without exposing the address.
func AnonymizeEmail(email string) string {
	return hashWithPrefix("user:", strings.ToLower(strings.TrimSpace(email)))
}

// AnonymizePhone is AnonymizeEmail for phone numbers.
func AnonymizePhone(phone string) string {
	return hashWithPrefix("phone:", strings.TrimSpace(phone))
}

// UserHash returns the anonymized email as an attribute.
//
//	logger.Info("account linked", logging.UserHash(rec.Email))
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}

// PhoneHash returns the anonymized phone number as an attribute.
func PhoneHash(phone string) slog.Attr {
	return slog.String(KeyPhoneHash, AnonymizePhone(phone))
}
