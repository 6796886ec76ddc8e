package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"beame2e/pkg/model"
)

// decodeIDToken 解出 ID token 的声明与载荷中的用户对象，不校验签名
func decodeIDToken(idToken string) (model.DecodedToken, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return model.DecodedToken{}, fmt.Errorf("parse id token: %w", err)
	}

	parts := strings.Split(idToken, ".")
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return model.DecodedToken{}, fmt.Errorf("decode id token payload: %w", err)
	}
	user := map[string]any{}
	if err := json.Unmarshal(payload, &user); err != nil {
		return model.DecodedToken{}, fmt.Errorf("decode id token user: %w", err)
	}
	return model.DecodedToken{User: user, Claims: claims}, nil
}
