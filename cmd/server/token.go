package main

import (
	"errors"

	"github.com/iliyamo/auction-marketplace/internal/config"
	"github.com/iliyamo/auction-marketplace/internal/utils"
)

// devToken signs an access token for principal with the server's secret.
// Only available outside prod.
func devToken(cfg config.Config, principal string) (string, error) {
	if cfg.Env == "prod" {
		return "", errors.New("dev tokens are disabled in prod")
	}
	tok, err := utils.NewAccessToken(cfg.JWTSecret, principal, cfg.AccessTTLMin)
	if err != nil {
		return "", err
	}
	return tok.Token, nil
}
