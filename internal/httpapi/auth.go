package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type authError struct {
	status  int
	code    string
	message string
}

func (e *authError) Error() string {
	return e.message
}

type tokenClaims struct {
	OrgID   string
	RepName string
	Scopes  map[string]struct{}
	Exp     int64
}

func authorizeBearer(authHeader, jwtSecret, orgID, requiredScope string, now time.Time) (tokenClaims, *authError) {
	claims, err := parseBearer(authHeader, jwtSecret, now)
	if err != nil {
		return tokenClaims{}, err
	}
	if orgID != "" && claims.OrgID != orgID {
		return tokenClaims{}, &authError{
			status:  403,
			code:    "forbidden",
			message: "organization mismatch",
		}
	}
	if requiredScope != "" {
		if _, ok := claims.Scopes[requiredScope]; !ok {
			return tokenClaims{}, &authError{
				status:  403,
				code:    "forbidden",
				message: "missing required scope: " + requiredScope,
			}
		}
	}
	return claims, nil
}

func parseBearer(authHeader, jwtSecret string, now time.Time) (tokenClaims, *authError) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return tokenClaims{}, &authError{
			status:  401,
			code:    "unauthorized",
			message: "missing or invalid bearer token",
		}
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return tokenClaims{}, &authError{
			status:  401,
			code:    "unauthorized",
			message: "invalid jwt format",
		}
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return tokenClaims{}, &authError{status: 401, code: "unauthorized", message: "invalid jwt header"}
	}
	var header struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return tokenClaims{}, &authError{status: 401, code: "unauthorized", message: "invalid jwt header"}
	}
	if header.Alg != "HS256" {
		return tokenClaims{}, &authError{status: 401, code: "unauthorized", message: "unsupported jwt algorithm"}
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return tokenClaims{}, &authError{status: 401, code: "unauthorized", message: "invalid jwt payload"}
	}

	sigBytes, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return tokenClaims{}, &authError{status: 401, code: "unauthorized", message: "invalid jwt signature"}
	}

	mac := hmac.New(sha256.New, []byte(jwtSecret))
	_, _ = mac.Write([]byte(parts[0] + "." + parts[1]))
	expected := mac.Sum(nil)
	if !hmac.Equal(sigBytes, expected) {
		return tokenClaims{}, &authError{status: 401, code: "unauthorized", message: "jwt signature mismatch"}
	}

	var payload map[string]any
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return tokenClaims{}, &authError{status: 401, code: "unauthorized", message: "invalid jwt payload"}
	}

	orgID, ok := payload["org_id"].(string)
	if !ok || orgID == "" {
		return tokenClaims{}, &authError{status: 401, code: "unauthorized", message: "missing org_id claim"}
	}
	repName, ok := payload["rep_name"].(string)
	if !ok || repName == "" {
		return tokenClaims{}, &authError{status: 401, code: "unauthorized", message: "missing rep_name claim"}
	}

	exp, err := parseExp(payload["exp"])
	if err != nil {
		return tokenClaims{}, &authError{status: 401, code: "unauthorized", message: "invalid exp claim"}
	}
	if now.Unix() >= exp {
		return tokenClaims{}, &authError{status: 401, code: "unauthorized", message: "token expired"}
	}
	if aud, ok := payload["aud"].(string); !ok || aud != "scoreline" {
		return tokenClaims{}, &authError{status: 401, code: "unauthorized", message: "invalid aud claim"}
	}

	scopes := parseScopes(payload["scopes"])
	if len(scopes) == 0 {
		return tokenClaims{}, &authError{status: 403, code: "forbidden", message: "no scopes granted"}
	}

	return tokenClaims{
		OrgID:   orgID,
		RepName: repName,
		Scopes:  scopes,
		Exp:     exp,
	}, nil
}

func parseScopes(v any) map[string]struct{} {
	out := map[string]struct{}{}
	switch typed := v.(type) {
	case []any:
		for _, item := range typed {
			if scope, ok := item.(string); ok && scope != "" {
				out[scope] = struct{}{}
			}
		}
	case []string:
		for _, scope := range typed {
			if scope != "" {
				out[scope] = struct{}{}
			}
		}
	case string:
		for _, scope := range strings.Fields(typed) {
			out[scope] = struct{}{}
		}
	}
	return out
}

func parseExp(v any) (int64, error) {
	switch typed := v.(type) {
	case float64:
		return int64(typed), nil
	case int64:
		return typed, nil
	case json.Number:
		return typed.Int64()
	default:
		return 0, errors.New("unsupported exp type")
	}
}

func hasAnyScope(scopes map[string]struct{}, required ...string) bool {
	for _, scope := range required {
		if _, ok := scopes[scope]; ok {
			return true
		}
	}
	return false
}
