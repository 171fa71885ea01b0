// Package logging holds the slog conventions used across mira.
//
// Attribute helpers keep key names consistent:
//
//	logger := logging.WithOperation(slog.Default(), "link_phone")
//	logger.Info("phone linked", logging.UserHash(email), logging.PhoneHash(phone))
//
// Emails and phone numbers are hashed before they reach a log line. Tokens
// are never passed as attributes, and handlers built by NewHandler redact
// OAuth codes and bearer tokens that slip into free-form strings.
package logging
