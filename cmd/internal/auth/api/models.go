package api

import "time"

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	DeviceName string `json:"deviceName,omitempty"`
	Captcha    string `json:"captcha,omitempty"`
}

type loginMFARequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Code       string `json:"code"`
	// Method is "totp" (default) or "backup".
	Method     string `json:"method,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`
}

type otpRequestRequest struct {
	Phone string `json:"phone"`
}

type otpVerifyRequest struct {
	Phone      string `json:"phone"`
	Code       string `json:"code"`
	DeviceName string `json:"deviceName,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type mfaEnableRequest struct {
	Code string `json:"code"`
}

type userResponse struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	Role        string    `json:"role"`
	MFAEnabled  bool      `json:"mfaEnabled"`
	CreatedAt   time.Time `json:"createdAt"`
}

type sessionResponse struct {
	SessionID        string    `json:"sessionId"`
	DeviceID         string    `json:"deviceId"`
	AccessToken      string    `json:"accessToken,omitempty"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken,omitempty"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	CSRFToken        string    `json:"csrfToken,omitempty"`
}

type loginResponse struct {
	Success     bool             `json:"success"`
	MFARequired bool             `json:"mfaRequired,omitempty"`
	User        *userResponse    `json:"user,omitempty"`
	Session     *sessionResponse `json:"session,omitempty"`
}

type refreshResponse struct {
	Success bool            `json:"success"`
	Session sessionResponse `json:"session"`
}

type meResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
}

type deviceResponse struct {
	ID             string    `json:"id"`
	DeviceName     string    `json:"deviceName"`
	UserAgent      string    `json:"userAgent,omitempty"`
	IPAddress      string    `json:"ipAddress,omitempty"`
	IsActive       bool      `json:"isActive"`
	LastUsedAt     time.Time `json:"lastUsedAt"`
	CreatedAt      time.Time `json:"createdAt"`
	ActiveSessions int       `json:"activeSessions"`
}

type devicesResponse struct {
	Success bool             `json:"success"`
	Devices []deviceResponse `json:"devices"`
}

type deviceRevokeResponse struct {
	Success  bool   `json:"success"`
	DeviceID string `json:"deviceId"`
	IsActive bool   `json:"isActive"`
}

type okResponse struct {
	Success bool `json:"success"`
}

type mfaSetupResponse struct {
	Success         bool     `json:"success"`
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioningUri"`
	QRCode          string   `json:"qrCode"`
	BackupCodes     []string `json:"backupCodes"`
}
