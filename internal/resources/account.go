package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/miraassistant/mira/internal/apperr"
	"github.com/miraassistant/mira/internal/identity"
	"github.com/miraassistant/mira/internal/server"
)

const (
	accountURIPrefix   = "mira://accounts/"
	accountURITemplate = accountURIPrefix + "{phoneNumber}"
)

// AccountStatus is the JSON body of an account resource.
type AccountStatus struct {
	PhoneNumber     string `json:"phoneNumber"`
	Email           string `json:"email"`
	Phase           string `json:"phase"`
	CalendarID      string `json:"calendarId"`
	HasRefreshToken bool   `json:"hasRefreshToken"`
	TokenExpiry     string `json:"tokenExpiry,omitempty"`
}

// RegisterAccountResources registers the mira://accounts/{phoneNumber}
// template.
func RegisterAccountResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	return register(s, sc.Store())
}

func register(s *mcpserver.MCPServer, store identity.Store) error {
	if store == nil {
		return fmt.Errorf("identity store is required")
	}

	template := mcp.NewResourceTemplate(
		accountURITemplate,
		"Linked account",
		mcp.WithTemplateDescription("Link state of the Google account bound to a phone number. "+
			"Percent-encode the leading + of the phone number."),
		mcp.WithTemplateMIMEType("application/json"),
	)

	s.AddResourceTemplate(template, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleAccount(ctx, request, store)
	})
	return nil
}

func handleAccount(ctx context.Context, request mcp.ReadResourceRequest, store identity.Store) ([]mcp.ResourceContents, error) {
	phone, err := phoneFromURI(request.Params.URI)
	if err != nil {
		return nil, err
	}

	matches, err := store.FindAllByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("looking up phone: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%s: %w", phone, apperr.ErrNoSuchAccount)
	}

	jsonData, err := json.MarshalIndent(statusOf(matches[0]), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account status: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}

func phoneFromURI(uri string) (string, error) {
	raw, ok := strings.CutPrefix(uri, accountURIPrefix)
	if !ok || raw == "" {
		return "", fmt.Errorf("invalid account URI %q: %w", uri, apperr.ErrBadRequest)
	}
	phone, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid account URI %q: %w", uri, apperr.ErrBadRequest)
	}
	return strings.TrimSpace(phone), nil
}

func statusOf(rec *identity.Record) AccountStatus {
	st := AccountStatus{
		PhoneNumber:     rec.PhoneNumber,
		Email:           rec.Email,
		Phase:           string(rec.Phase()),
		CalendarID:      rec.Calendar(),
		HasRefreshToken: rec.RefreshToken != "",
	}
	if !rec.TokenExpiry.IsZero() {
		st.TokenExpiry = rec.TokenExpiry.UTC().Format(time.RFC3339)
	}
	return st
}
