package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserPassword(t *testing.T) {
	var u User
	require.NoError(t, u.SetPassword("s3cret-pass"))

	assert.NotEqual(t, "s3cret-pass", u.PasswordHash)
	assert.True(t, u.CheckPassword("s3cret-pass"))
	assert.False(t, u.CheckPassword("wrong"))
	assert.Error(t, u.SetPassword(""))
}

func TestCheckPassword_NoHash(t *testing.T) {
	var u User
	assert.False(t, u.CheckPassword(""))
}

func TestUserJSON_OmitsSecrets(t *testing.T) {
	u := User{ID: 1, Username: "alice", PasswordHash: "hash", RefreshToken: "token"}
	raw, err := json.Marshal(u)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.NotContains(t, fields, "password")
	assert.NotContains(t, fields, "PasswordHash")
	assert.NotContains(t, fields, "refreshToken")
	assert.NotContains(t, fields, "RefreshToken")
	assert.Equal(t, "alice", fields["username"])
}

func TestUserUpdateEmpty(t *testing.T) {
	assert.True(t, UserUpdate{}.Empty())
	name := "Alice"
	assert.False(t, UserUpdate{FullName: &name}.Empty())
}
