package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// 会话令牌相关错误
var (
	ErrInvalidToken  = errors.New("invalid session token")
	ErrTokenExpired  = errors.New("session token expired")
	ErrTokenNotReady = errors.New("session token used before valid")
)

// SessionClaims 会话令牌载荷
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionTokenService 签发与校验目录会话令牌
type SessionTokenService interface {
	Issue(sessionID string) (string, error)
	Validate(token string) (*SessionClaims, error)
}

type sessionTokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewSessionTokenService 创建会话令牌服务
func NewSessionTokenService(secret, issuer string, ttl time.Duration, logger *zap.Logger) SessionTokenService {
	return &sessionTokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Issue 为会话签发 HS256 令牌
func (s *sessionTokenService) Issue(sessionID string) (string, error) {
	now := s.now()
	claims := &SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    s.issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		s.logger.Error("failed to sign session token", zap.Error(err))
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Validate 校验令牌签名、有效期与签发者
func (s *sessionTokenService) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotReady
		}
		s.logger.Debug("session token validation failed", zap.Error(err))
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != s.issuer {
		s.logger.Warn("session token issuer mismatch",
			zap.String("expected", s.issuer),
			zap.String("actual", claims.Issuer),
		)
		return nil, ErrInvalidToken
	}
	return claims, nil
}
