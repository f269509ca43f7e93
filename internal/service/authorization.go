package service

import (
	"strings"

	"identity-server/internal/domain"
)

const bearerScheme = "Bearer"

// Gate turns an Authorization header into a verified Identity and decides
// whether that identity owns a resource.
type Gate struct {
	tokens *TokenService
}

func NewGate(tokens *TokenService) *Gate {
	return &Gate{tokens: tokens}
}

// Authenticate accepts only "Bearer <access token>". A missing header, any
// other scheme, or a token that fails verification all yield ErrUnauthorized.
func (g *Gate) Authenticate(header string) (*domain.Identity, error) {
	token, ok := ParseBearer(header)
	if !ok {
		return nil, ErrUnauthorized
	}

	identity, err := g.tokens.VerifyAccessToken(token)
	if err != nil {
		return nil, ErrUnauthorized
	}

	return identity, nil
}

// AuthorizeOwner allows identity to act on resourceID only when it is the
// identity's own account.
func AuthorizeOwner(identity *domain.Identity, resourceID string) error {
	if identity == nil || identity.Subject == "" {
		return ErrUnauthorized
	}
	if resourceID == "" || identity.Subject != resourceID {
		return ErrForbidden
	}
	return nil
}

// ParseBearer extracts the token from an Authorization header value. The
// scheme name is matched case-insensitively.
func ParseBearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}

	return token, true
}
