package account

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/quennel-io/hearthlink/internal/cloud"
)

type mockAPI struct {
	responses map[string]*cloud.Envelope
	err       error
	lastBody  any
}

func (m *mockAPI) DoEnvelope(_ context.Context, _, path string, body any) (*cloud.Envelope, error) {
	m.lastBody = body
	if m.err != nil {
		return nil, m.err
	}
	return m.responses[path], nil
}

func TestListInvites(t *testing.T) {
	api := &mockAPI{responses: map[string]*cloud.Envelope{
		cloud.PathInviteList: {Code: cloud.CodeOK, Data: json.RawMessage(
			`[{"invite_id":3,"email":"friend@example.com","device_sns":"CAM001"}]`)},
	}}
	s := New(api)

	invites, err := s.ListInvites(context.Background())
	if err != nil {
		t.Fatalf("ListInvites() error: %v", err)
	}
	if len(invites) != 1 || invites[0].Email != "friend@example.com" {
		t.Errorf("ListInvites() = %+v, want one invite", invites)
	}
}

func TestListInvites_EmptyData(t *testing.T) {
	api := &mockAPI{responses: map[string]*cloud.Envelope{
		cloud.PathInviteList: {Code: cloud.CodeOK, Data: json.RawMessage(`null`)},
	}}
	s := New(api)

	invites, err := s.ListInvites(context.Background())
	if err != nil {
		t.Fatalf("ListInvites() error: %v", err)
	}
	if invites != nil {
		t.Errorf("ListInvites() = %v, want nil", invites)
	}
}

func TestCipherKeys(t *testing.T) {
	api := &mockAPI{responses: map[string]*cloud.Envelope{
		cloud.PathCipherList: {Code: cloud.CodeOK, Data: json.RawMessage(
			`[{"cipher_id":5,"user_id":"u1","private_key":"k"}]`)},
	}}
	s := New(api)

	ciphers, err := s.CipherKeys(context.Background(), []int{5})
	if err != nil {
		t.Fatalf("CipherKeys() error: %v", err)
	}
	if len(ciphers) != 1 || ciphers[0].CipherID != 5 {
		t.Errorf("CipherKeys() = %+v, want cipher 5", ciphers)
	}

	body := api.lastBody.(map[string]any)
	ids, ok := body["cipher_ids"].([]int)
	if !ok || len(ids) != 1 || ids[0] != 5 {
		t.Errorf("cipher_ids = %v, want [5]", body["cipher_ids"])
	}
}

func TestRegisterPushToken_Error(t *testing.T) {
	api := &mockAPI{err: cloud.ErrTransport}
	s := New(api)

	if err := s.RegisterPushToken(context.Background(), "tok"); !errors.Is(err, cloud.ErrTransport) {
		t.Errorf("RegisterPushToken() error = %v, want ErrTransport", err)
	}
}
