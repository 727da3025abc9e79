package cloud

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Default identity values used when the configuration leaves them unset.
const (
	defaultAppVersion = "v4.6.0_1630"
	defaultOSType     = "android"
	defaultOSVersion  = "31"
	defaultPhoneModel = "ONEPLUS A3003"
	defaultCountry    = "US"
	defaultLanguage   = "en"
	defaultTimezone   = "GMT+00:00"
)

// Identity is the fixed bag of device/client-identity headers sent with
// every authenticated call. The cloud rejects sessions whose identity
// drifts between requests, so the bag is immutable once validated.
type Identity struct {
	AppVersion string
	OSType     string
	OSVersion  string
	PhoneModel string
	Country    string
	Language   string
	Timezone   string
	OpenUDID   string
	Serial     string
}

// ApplyDefaults fills unset fields with defaults. An empty OpenUDID is
// replaced with a generated one; persist it if the device identity must
// survive restarts (a changed OpenUDID re-triggers 2FA).
func (id *Identity) ApplyDefaults() {
	if id.AppVersion == "" {
		id.AppVersion = defaultAppVersion
	}
	if id.OSType == "" {
		id.OSType = defaultOSType
	}
	if id.OSVersion == "" {
		id.OSVersion = defaultOSVersion
	}
	if id.PhoneModel == "" {
		id.PhoneModel = defaultPhoneModel
	}
	if id.Country == "" {
		id.Country = defaultCountry
	}
	if id.Language == "" {
		id.Language = defaultLanguage
	}
	if id.Timezone == "" {
		id.Timezone = defaultTimezone
	}
	if id.OpenUDID == "" {
		id.OpenUDID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
}

// Validate checks the country and language codes before any network call.
//
// Country must be an ISO-3166-1 alpha-2 code and language an ISO-639-1
// code. Validation is synchronous: an invalid code is the caller's
// mistake, not the API's.
//
// Returns:
//   - error: ErrInvalidCountryCode or ErrInvalidLanguageCode (wrapped
//     with the offending value), nil when both codes are valid
func (id Identity) Validate() error {
	if _, ok := countryCodes[strings.ToUpper(id.Country)]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidCountryCode, id.Country)
	}
	if _, ok := languageCodes[strings.ToLower(id.Language)]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidLanguageCode, id.Language)
	}
	return nil
}

// headers returns the identity header set attached to every request.
func (id Identity) headers() map[string]string {
	return map[string]string{
		"app_version": id.AppVersion,
		"os_type":     id.OSType,
		"os_version":  id.OSVersion,
		"phone_model": id.PhoneModel,
		"country":     strings.ToUpper(id.Country),
		"language":    strings.ToLower(id.Language),
		"timezone":    id.Timezone,
		"openudid":    id.OpenUDID,
		"sn":          id.Serial,
	}
}
