package utils

import (
    "testing"

    "github.com/golang-jwt/jwt/v5"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestNewAccessToken(t *testing.T) {
    tok, err := NewAccessToken("s3cret", "user-7", 15)
    require.NoError(t, err)

    parsed, err := jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
    require.NoError(t, err)
    sub, err := parsed.Claims.GetSubject()
    require.NoError(t, err)
    assert.Equal(t, "user-7", sub)

    _, err = NewAccessToken("s3cret", "", 15)
    assert.Error(t, err)
}
