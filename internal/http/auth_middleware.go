package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
	jwtpkg "github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/jwt"
)

var (
	errNoCredentials = errors.New("missing bearer token")
	errBadScheme     = errors.New("authorization scheme must be Bearer")
)

type authInfo struct {
	UserID string
	Role   domain.Role
}

type authKey struct{}

func withAuthInfo(ctx context.Context, info authInfo) context.Context {
	return context.WithValue(ctx, authKey{}, info)
}

func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	info, ok := ctx.Value(authKey{}).(authInfo)
	return info, ok
}

// authenticate resolves the caller from the bearer token. Tokens without a
// role are read-only.
func (r *Router) authenticate(req *http.Request) (authInfo, error) {
	token, err := tokenFromRequest(req)
	if err != nil {
		return authInfo{}, err
	}
	claims, err := jwtpkg.Parse(token, r.jwtSecret)
	if err != nil {
		return authInfo{}, err
	}
	role := domain.Role(claims.Role)
	if role == "" {
		role = domain.RoleViewer
	}
	return authInfo{UserID: claims.UserID(), Role: role}, nil
}

// tokenFromRequest reads the Authorization header. Websocket handshakes from
// browsers cannot set headers, so upgrades may pass access_token instead.
func tokenFromRequest(req *http.Request) (string, error) {
	header := strings.TrimSpace(req.Header.Get("Authorization"))
	if header == "" {
		if websocketHandshake(req) {
			if token := strings.TrimSpace(req.URL.Query().Get("access_token")); token != "" {
				return token, nil
			}
		}
		return "", errNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errBadScheme
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", errNoCredentials
	}
	return token, nil
}

func websocketHandshake(req *http.Request) bool {
	return strings.EqualFold(req.Header.Get("Upgrade"), "websocket")
}
