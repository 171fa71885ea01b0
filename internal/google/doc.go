// Package google builds the OAuth2 client configuration mira uses to talk to
// Google: client credentials, redirect URL, scopes and the consent URL.
//
// Configuration is always passed in explicitly; nothing here reads the
// environment or the filesystem.
package google
