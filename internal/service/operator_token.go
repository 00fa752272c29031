package service

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OperatorClaims 操作人 JWT Claims
type OperatorClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// IssueOperatorToken 签发操作人 Token
func IssueOperatorToken(secret, issuer, operator string, ttl time.Duration) (string, time.Time, error) {
	operator = strings.TrimSpace(operator)
	if secret == "" || operator == "" {
		return "", time.Time{}, ErrTokenInvalid
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := OperatorClaims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   operator,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseOperatorToken 解析操作人 Token，issuer 非空时校验签发方
func ParseOperatorToken(secret, issuer, tokenString string) (*OperatorClaims, error) {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		options = append(options, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid || strings.TrimSpace(claims.Operator) == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
