package credentials

// Entry names.
const (
	KeyMerchantCode = "merchant_code"
	KeyAPIToken     = "api_token"
	KeyAPISecret    = "api_secret"
	KeyAPIEndpoint  = "api_endpoint"
	KeyDeviceID     = "device_id"
	KeyRefreshToken = "refresh_token"
	KeyTokenExpiry  = "token_expiry"
	KeyUserID       = "user_id"
	KeyUserPhone    = "user_phone"
)

// authFields are session-scoped and removed by ClearAuthData.
var authFields = []string{
	KeyAPIToken,
	KeyRefreshToken,
	KeyTokenExpiry,
	KeyUserID,
	KeyUserPhone,
}

func (s *Store) MerchantCode() (string, bool, error)   { return s.GetString(KeyMerchantCode) }
func (s *Store) SetMerchantCode(v string) error        { return s.SetString(KeyMerchantCode, v) }
func (s *Store) APIToken() (string, bool, error)       { return s.GetString(KeyAPIToken) }
func (s *Store) SetAPIToken(v string) error            { return s.SetString(KeyAPIToken, v) }
func (s *Store) APISecret() (string, bool, error)      { return s.GetString(KeyAPISecret) }
func (s *Store) SetAPISecret(v string) error           { return s.SetString(KeyAPISecret, v) }
func (s *Store) APIEndpoint() (string, bool, error)    { return s.GetString(KeyAPIEndpoint) }
func (s *Store) SetAPIEndpoint(v string) error         { return s.SetString(KeyAPIEndpoint, v) }
func (s *Store) DeviceID() (string, bool, error)       { return s.GetString(KeyDeviceID) }
func (s *Store) SetDeviceID(v string) error            { return s.SetString(KeyDeviceID, v) }
func (s *Store) RefreshToken() (string, bool, error)   { return s.GetString(KeyRefreshToken) }
func (s *Store) SetRefreshToken(v string) error        { return s.SetString(KeyRefreshToken, v) }
func (s *Store) TokenExpiry() (int64, bool, error)     { return s.GetInt64(KeyTokenExpiry) }
func (s *Store) SetTokenExpiry(unixMillis int64) error { return s.SetInt64(KeyTokenExpiry, unixMillis) }
func (s *Store) UserID() (string, bool, error)         { return s.GetString(KeyUserID) }
func (s *Store) SetUserID(v string) error              { return s.SetString(KeyUserID, v) }
func (s *Store) UserPhone() (string, bool, error)      { return s.GetString(KeyUserPhone) }
func (s *Store) SetUserPhone(v string) error           { return s.SetString(KeyUserPhone, v) }
