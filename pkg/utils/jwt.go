package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"safetrain-backend/pkg/models"
)

const tokenTypeAccess = "access"

// DefaultTokenTTL is the lifetime of development tokens.
const DefaultTokenTTL = 15 * time.Minute

// JWTService JWT服务
type JWTService struct {
	secretKey []byte
	now       func() time.Time
}

// NewJWTService 创建JWT服务
func NewJWTService(secretKey string) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
		now:       time.Now,
	}
}

// GenerateAccessToken 生成访问令牌
func (j *JWTService) GenerateAccessToken(identity models.Identity, ttl time.Duration) (string, int64, error) {
	if identity.ID == "" {
		return "", 0, errors.New("identity id is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := j.now()
	expiry := now.Add(ttl)

	claims := &models.TokenClaims{
		Subject:   identity.ID,
		UserID:    identity.ID,
		Email:     identity.Email,
		FirstName: identity.FirstName,
		Type:      tokenTypeAccess,
		Exp:       expiry.Unix(),
		Iat:       now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate access token: %w", err)
	}

	return tokenString, expiry.Unix(), nil
}

// ValidateToken 验证令牌并返回调用者身份
func (j *JWTService) ValidateToken(tokenString string) (*models.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithTimeFunc(j.now))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	// 检查token类型（只接受access token）
	if claims.Type != tokenTypeAccess {
		return nil, fmt.Errorf("invalid token type: %q", claims.Type)
	}

	// 检查是否过期
	if j.now().Unix() > claims.Exp {
		return nil, fmt.Errorf("token expired")
	}

	identity := claims.Identity()
	if identity.ID == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return identity, nil
}
