package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountView_HidesSecrets(t *testing.T) {
	a := &Account{
		ID:            "id-1",
		Username:      "alice",
		Email:         "alice@example.com",
		FullName:      "Alice",
		PasswordHash:  "$2a$10$hash",
		Avatar:        MediaAssetRef{URL: "http://cdn/a.png", AssetID: "accounts/id-1/a.png"},
		SessionSecret: "digest",
		CreatedAt:     time.Unix(0, 0).UTC(),
	}

	b, err := json.Marshal(a.View())
	require.NoError(t, err)

	s := string(b)
	assert.NotContains(t, s, "hash")
	assert.NotContains(t, s, "digest")
	assert.NotContains(t, s, "coverImage")
	assert.Contains(t, s, `"username":"alice"`)
	assert.Contains(t, s, `"assetId":"accounts/id-1/a.png"`)
}

func TestAccountView_CopiesCover(t *testing.T) {
	cover := &MediaAssetRef{URL: "u", AssetID: "k"}
	a := &Account{Cover: cover}

	v := a.View()
	cover.URL = "changed"

	require.NotNil(t, v.Cover)
	assert.Equal(t, "u", v.Cover.URL)
}

func TestAccountUpdate_Apply(t *testing.T) {
	name := "Bob"
	secret := ""
	a := &Account{FullName: "Alice", SessionSecret: "s", Cover: &MediaAssetRef{AssetID: "c"}}

	u := AccountUpdate{FullName: &name, SessionSecret: &secret, ClearCover: true}
	assert.False(t, u.IsEmpty())
	u.Apply(a)

	assert.Equal(t, "Bob", a.FullName)
	assert.Empty(t, a.SessionSecret)
	assert.Nil(t, a.Cover)
	assert.True(t, AccountUpdate{}.IsEmpty())
}
