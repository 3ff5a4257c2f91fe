package auth

import (
	"context"
	"errors"
)

// Static hands out a fixed secret, such as an IMAP password.
type Static struct {
	secret string
}

func NewStatic(secret string) *Static {
	return &Static{secret: secret}
}

func (s *Static) Token(context.Context) (string, error) {
	if s.secret == "" {
		return "", errors.New("no credential configured")
	}
	return s.secret, nil
}
