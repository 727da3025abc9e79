package account

import (
	"context"
	"fmt"
	"net/http"

	"github.com/quennel-io/hearthlink/internal/cloud"
)

// API is the request primitive the account service needs from the cloud
// client. Satisfied by *cloud.Dispatcher.
type API interface {
	DoEnvelope(ctx context.Context, method, path string, body any) (*cloud.Envelope, error)
}

// Invite is a pending share invitation for the account.
type Invite struct {
	InviteID   int64  `json:"invite_id"`
	Email      string `json:"email"`
	DeviceSNs  string `json:"device_sns"`
	ActionUser string `json:"action_user_name"`
}

// Cipher is one station cipher key used to decrypt stored media.
type Cipher struct {
	CipherID   int    `json:"cipher_id"`
	UserID     string `json:"user_id"`
	PrivateKey string `json:"private_key"`
}

// Service wraps the account-scoped endpoints.
type Service struct {
	api API
}

// New creates an account service on top of the request dispatcher.
func New(api API) *Service {
	return &Service{api: api}
}

// ListInvites returns the account's pending share invitations.
func (s *Service) ListInvites(ctx context.Context) ([]Invite, error) {
	env, err := s.api.DoEnvelope(ctx, http.MethodPost, cloud.PathInviteList, map[string]any{
		"num":  100,
		"page": 0,
	})
	if err != nil {
		return nil, fmt.Errorf("listing invites: %w", err)
	}

	var invites []Invite
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := env.DecodeData(&invites); err != nil {
			return nil, fmt.Errorf("listing invites: %w", err)
		}
	}
	return invites, nil
}

// CipherKeys fetches the cipher keys for the given cipher IDs.
func (s *Service) CipherKeys(ctx context.Context, ids []int) ([]Cipher, error) {
	env, err := s.api.DoEnvelope(ctx, http.MethodPost, cloud.PathCipherList, map[string]any{
		"cipher_ids": ids,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching cipher keys: %w", err)
	}

	var ciphers []Cipher
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := env.DecodeData(&ciphers); err != nil {
			return nil, fmt.Errorf("fetching cipher keys: %w", err)
		}
	}
	return ciphers, nil
}

// RegisterPushToken registers a push notification token for this device.
func (s *Service) RegisterPushToken(ctx context.Context, token string) error {
	_, err := s.api.DoEnvelope(ctx, http.MethodPost, cloud.PathRegisterPush, map[string]any{
		"is_notification_enable": true,
		"token":                  token,
	})
	if err != nil {
		return fmt.Errorf("registering push token: %w", err)
	}
	return nil
}
