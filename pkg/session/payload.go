package session

import (
	"github.com/golang-jwt/jwt/v5"
)

// Payload is the decoded access-token payload, reduced to the two fields the
// storefront acts on. Anything the decode cannot make sense of counts as
// "no session".
type Payload struct {
	Role string
	Exp  int64
}

func (p *Payload) Admin() bool {
	return p != nil && p.Role == "admin"
}

// DecodePayload parses the token payload without verifying the signature;
// verification is the backend's job, the client only needs exp and role.
// Malformed base64, non-JSON payloads and empty tokens all yield nil.
func DecodePayload(token string) *Payload {
	if token == "" {
		return nil
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}

	p := &Payload{}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		p.Exp = exp.Unix()
	}
	if role, ok := claims["role"].(string); ok {
		p.Role = role
	}
	return p
}
