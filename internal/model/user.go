package model

const (
	AccountAdmin     = "admin"
	AccountModerator = "moderator"
	AccountSupport   = "support"
	AccountUser      = "user"

	BadgeVerified = "verified"

	UnknownUserLabel = "Unknown user"
)

// User record keys.
const (
	UserKeyNickname    = "nickname"
	UserKeyUsername    = "username"
	UserKeyAvatar      = "avatar"
	UserKeyGender      = "gender"
	UserKeyAccountType = "account_type"
	UserKeyVerified    = "verify"
	UserKeyBanned      = "banned"
)

// UserProjection is the subset of a user record the feed needs.
type UserProjection struct {
	ID          string `json:"id"`
	Nickname    string `json:"nickname"`
	Username    string `json:"username"`
	AvatarURL   string `json:"avatar_url"`
	Gender      string `json:"gender"`
	AccountType string `json:"account_type"`
	Verified    bool   `json:"verified"`
	Banned      bool   `json:"banned"`
	Fallback    bool   `json:"fallback,omitempty"`
}

func DecodeUser(id string, rec map[string]any) UserProjection {
	return UserProjection{
		ID:          id,
		Nickname:    stringField(rec, UserKeyNickname),
		Username:    stringField(rec, UserKeyUsername),
		AvatarURL:   stringField(rec, UserKeyAvatar),
		Gender:      stringField(rec, UserKeyGender),
		AccountType: stringField(rec, UserKeyAccountType),
		Verified:    boolField(rec, UserKeyVerified),
		Banned:      boolField(rec, UserKeyBanned),
	}
}

// FallbackProjection stands in for a user whose record could not be read.
func FallbackProjection(id string) UserProjection {
	return UserProjection{ID: id, Fallback: true}
}

func (u UserProjection) DisplayName() string {
	switch {
	case u.Fallback:
		return UnknownUserLabel
	case present(u.Nickname):
		return u.Nickname
	case present(u.Username):
		return "@" + u.Username
	default:
		return UnknownUserLabel
	}
}

// Badge returns the account badge to show next to the name, or "".
func (u UserProjection) Badge() string {
	if u.Fallback {
		return ""
	}
	switch u.AccountType {
	case AccountAdmin, AccountModerator, AccountSupport:
		return u.AccountType
	}
	if u.Verified {
		return BadgeVerified
	}
	return ""
}

func (u UserProjection) HasAvatar() bool {
	return !u.Fallback && present(u.AvatarURL)
}
