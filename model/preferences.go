package model

// ChannelPreferences records which delivery channels a user has enabled.
// Users without a stored row get the defaults.
type ChannelPreferences struct {
	UserID           string `json:"userId"`
	InAppEnabled     bool   `json:"inAppEnabled"`
	PushEnabled      bool   `json:"pushEnabled"`
	EmailEnabled     bool   `json:"emailEnabled"`
	MarketingEnabled bool   `json:"marketingEnabled"`
}

// DefaultChannelPreferences returns the preferences applied to users who have
// never saved any. All channels except marketing start enabled.
func DefaultChannelPreferences(userID string) *ChannelPreferences {
	return &ChannelPreferences{
		UserID:           userID,
		InAppEnabled:     true,
		PushEnabled:      true,
		EmailEnabled:     true,
		MarketingEnabled: false,
	}
}

// PushCredential is a device registration for push delivery. A user may have
// multiple credentials, one per device.
type PushCredential struct {
	UserID   string `json:"userId"`
	Platform string `json:"platform"`
	Token    string `json:"token"`
}
