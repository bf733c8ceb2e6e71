package utils

import (
    "testing"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestNewAccessToken_Claims(t *testing.T) {
    secret := "0123456789abcdef"

    tok, err := NewAccessToken(secret, "door-2", "STAFF", time.Hour)
    require.NoError(t, err)
    assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Exp, 5*time.Second)

    claims := jwt.MapClaims{}
    _, err = jwt.ParseWithClaims(tok.Token, claims, func(*jwt.Token) (interface{}, error) { return []byte(secret), nil })
    require.NoError(t, err)
    assert.Equal(t, "door-2", claims["sub"])
    assert.Equal(t, "STAFF", claims["role"])
}

func TestNewAccessToken_Rejects(t *testing.T) {
    _, err := NewAccessToken("", "x", "STAFF", time.Hour)
    assert.Error(t, err)

    _, err = NewAccessToken("0123456789abcdef", "x", "STAFF", 0)
    assert.Error(t, err)
}
