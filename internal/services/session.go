package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stageroom/stageroom-backend/internal/logger"
	"github.com/stageroom/stageroom-backend/internal/repos"
	"github.com/stageroom/stageroom-backend/internal/requestdata"
	"github.com/stageroom/stageroom-backend/internal/types"
)

// SessionClaims is the storefront session token payload. Subject carries the
// shop id; SessionKey identifies the browsing session for rate limiting.
type SessionClaims struct {
	jwt.RegisteredClaims
	ShopDomain string `json:"shop_domain"`
	SessionKey string `json:"session_key"`
}

type SessionService interface {
	IssueSessionToken(ctx context.Context, shop *types.Shop, sessionKey string) (string, error)
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
}

type sessionService struct {
	db           *gorm.DB
	log          *logger.Logger
	shopRepo     repos.ShopRepo
	jwtSecretKey string
	sessionTTL   time.Duration
}

func NewSessionService(db *gorm.DB, baseLog *logger.Logger, shopRepo repos.ShopRepo, jwtSecretKey string, sessionTTL time.Duration) SessionService {
	return &sessionService{
		db:           db,
		log:          baseLog.With("service", "SessionService"),
		shopRepo:     shopRepo,
		jwtSecretKey: jwtSecretKey,
		sessionTTL:   sessionTTL,
	}
}

func (s *sessionService) IssueSessionToken(ctx context.Context, shop *types.Shop, sessionKey string) (string, error) {
	if sessionKey == "" {
		sessionKey = uuid.New().String()
	}
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   shop.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		ShopDomain: shop.Domain,
		SessionKey: sessionKey,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecretKey))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

func (s *sessionService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, fmt.Errorf("empty session token")
	}
	parsedToken, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecretKey), nil
	})
	if err != nil {
		return ctx, fmt.Errorf("parse session token: %w", err)
	}
	claims, ok := parsedToken.Claims.(*SessionClaims)
	if !ok || !parsedToken.Valid {
		return ctx, fmt.Errorf("invalid or expired session token")
	}
	shopID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, fmt.Errorf("invalid shop id in token: %w", err)
	}
	if _, err := s.shopRepo.GetByID(ctx, nil, shopID); err != nil {
		return ctx, fmt.Errorf("unknown shop: %w", err)
	}

	rd := &requestdata.RequestData{
		ShopID:     shopID,
		ShopDomain: claims.ShopDomain,
		SessionKey: claims.SessionKey,
		TraceID:    uuid.New().String(),
	}
	return requestdata.WithRequestData(ctx, rd), nil
}
