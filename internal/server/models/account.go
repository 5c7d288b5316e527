package models

import "time"

// MediaAssetRef points at an object in media storage. AssetID is the
// object key needed to delete it; URL is what clients see.
type MediaAssetRef struct {
	URL     string `json:"url" bson:"url"`
	AssetID string `json:"assetId" bson:"asset_id"`
}

// IsZero reports whether the ref points at nothing.
func (r MediaAssetRef) IsZero() bool {
	return r.AssetID == "" && r.URL == ""
}

// Account is the stored account record. PasswordHash and SessionSecret
// never leave the server; callers get an AccountView instead.
type Account struct {
	ID            string
	Username      string
	Email         string
	FullName      string
	PasswordHash  string
	Avatar        MediaAssetRef
	Cover         *MediaAssetRef
	SessionSecret string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// View projects the account without its secrets.
func (a *Account) View() *AccountView {
	v := &AccountView{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		FullName:  a.FullName,
		Avatar:    a.Avatar,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.Cover != nil {
		c := *a.Cover
		v.Cover = &c
	}
	return v
}

// AccountView is the public projection of an Account.
type AccountView struct {
	ID        string         `json:"id"`
	Username  string         `json:"username"`
	Email     string         `json:"email"`
	FullName  string         `json:"fullName"`
	Avatar    MediaAssetRef  `json:"avatar"`
	Cover     *MediaAssetRef `json:"coverImage,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// AccountUpdate lists the fields to change; nil means leave as is.
// ClearCover removes the cover ref and wins over Cover.
type AccountUpdate struct {
	FullName      *string
	Email         *string
	PasswordHash  *string
	Avatar        *MediaAssetRef
	Cover         *MediaAssetRef
	ClearCover    bool
	SessionSecret *string
}

// IsEmpty reports whether u would change nothing.
func (u AccountUpdate) IsEmpty() bool {
	return u.FullName == nil && u.Email == nil && u.PasswordHash == nil &&
		u.Avatar == nil && u.Cover == nil && !u.ClearCover && u.SessionSecret == nil
}

// Apply copies the set fields of u onto a. Used by stores that update
// in memory.
func (u AccountUpdate) Apply(a *Account) {
	if u.FullName != nil {
		a.FullName = *u.FullName
	}
	if u.Email != nil {
		a.Email = *u.Email
	}
	if u.PasswordHash != nil {
		a.PasswordHash = *u.PasswordHash
	}
	if u.Avatar != nil {
		a.Avatar = *u.Avatar
	}
	if u.Cover != nil {
		c := *u.Cover
		a.Cover = &c
	}
	if u.ClearCover {
		a.Cover = nil
	}
	if u.SessionSecret != nil {
		a.SessionSecret = *u.SessionSecret
	}
}

// TokenPair is an access/refresh token couple minted together.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
