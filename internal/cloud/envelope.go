package cloud

import (
	"encoding/json"
	"fmt"
)

// Well-known business result codes carried in the response envelope.
const (
	// CodeOK is the single success sentinel.
	CodeOK = 0

	// CodeNeedVerifyCode indicates the account requires two-factor
	// verification before the issued token becomes fully usable.
	CodeNeedVerifyCode = 26052

	// CodeWrongPassword indicates rejected credentials.
	CodeWrongPassword = 26006

	// CodeServerBusy indicates a transient server-side condition; callers
	// may retry at their own discretion.
	CodeServerBusy = 100028
)

// API endpoint paths. All requests are relative to the session's current
// API base, which may change after a domain migration. The auth paths
// are used here; the rest are exported for the service packages that
// own those endpoints.
const (
	PathLogin           = "/v1/passport/login"
	PathSendVerifyCode  = "/v1/sms/send/verify_code"
	PathTrustDeviceAdd  = "/v1/app/trust_device/add"
	PathTrustDeviceList = "/v1/app/trust_device/list"
	PathDeviceList      = "/v1/app/get_devs_list"
	PathHubList         = "/v1/app/get_hub_list"
	PathUploadParams    = "/v1/app/upload_devs_params"
	PathEventHistory    = "/v1/event/app/get_all_history_record"
	PathInviteList      = "/v1/app/get_invites"
	PathCipherList      = "/v1/app/cipher/get_ciphers"
	PathRegisterPush    = "/v1/apppush/register_push_token"
)

// Envelope is the wire format of every API response body.
//
// Code 0 means success; any other code is a business error described by
// Msg. Data holds the endpoint-specific payload and is left raw so each
// caller can decode its own shape.
type Envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// OK reports whether the envelope carries the success sentinel.
func (e *Envelope) OK() bool {
	return e.Code == CodeOK
}

// Err returns nil for a success envelope and a *BusinessError otherwise.
func (e *Envelope) Err() error {
	if e.OK() {
		return nil
	}
	return &BusinessError{Code: e.Code, Msg: e.Msg}
}

// DecodeData unmarshals the envelope payload into v.
func (e *Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("cloud: envelope has no data")
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decoding envelope data: %w", err)
	}
	return nil
}
