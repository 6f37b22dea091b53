// Package services contains server-side business logic over the
// repositories. UserService authenticates end users and resolves them into
// payflow callers; LedgerService keeps balances and outgoing transactions.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/umasend/internal/common"
	"github.com/dmitrijs2005/umasend/internal/cryptox"
	"github.com/dmitrijs2005/umasend/internal/server/auth"
	"github.com/dmitrijs2005/umasend/internal/server/config"
	"github.com/dmitrijs2005/umasend/internal/server/currency"
	"github.com/dmitrijs2005/umasend/internal/server/models"
	"github.com/dmitrijs2005/umasend/internal/server/payflow"
	"github.com/dmitrijs2005/umasend/internal/server/repositories/repomanager"
)

type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

// Login checks the password against the stored verifier and returns an
// access token. Unknown users and wrong passwords are indistinguishable.
func (s *UserService) Login(ctx context.Context, userName, password string) (string, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetUserByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// burn the same KDF work as a real check
			cryptox.MakeVerifier([]byte(password), s.getRandomSalt())
			return "", common.ErrorUnauthorized
		}
		return "", common.ErrorInternal
	}

	candidate := cryptox.MakeVerifier([]byte(password), user.Salt)
	if !cryptox.CheckVerifier(user.Verifier, candidate) {
		return "", common.ErrorUnauthorized
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return "", common.ErrorInternal
	}
	return token, nil
}

// Register creates a user with a fresh salt and the verifier of password.
func (s *UserService) Register(ctx context.Context, u *models.User, password string) (*models.User, error) {
	u.Salt = s.getRandomSalt()
	u.Verifier = cryptox.MakeVerifier([]byte(password), u.Salt)
	if u.KYCStatus == "" {
		u.KYCStatus = "NOT_VERIFIED"
	}

	created, err := s.repomanager.Users(s.db).Create(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return created, nil
}

// ResolveCaller maps a bearer token to the user it was issued for.
func (s *UserService) ResolveCaller(ctx context.Context, token string) (*payflow.Caller, error) {
	userID, err := auth.GetUserIDFromToken(token, s.jwtSecret)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	return &payflow.Caller{
		ID:        user.ID,
		UserName:  user.UserName,
		Name:      user.FullName,
		Email:     user.Email,
		KYCStatus: user.KYCStatus,
	}, nil
}

// SettlementCurrencies returns the user's preferred sending currencies.
// An empty result lets the caller fall back to SAT.
func (s *UserService) SettlementCurrencies(ctx context.Context, userID string) ([]currency.Descriptor, error) {
	prefs, err := s.repomanager.Users(s.db).CurrencyPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]currency.Descriptor, 0, len(prefs))
	for _, p := range prefs {
		out = append(out, currency.Descriptor{
			Code:        p.Code,
			Name:        p.Name,
			Symbol:      p.Symbol,
			Multiplier:  p.Multiplier,
			Decimals:    p.Decimals,
			MinSendable: p.MinSendable,
			MaxSendable: p.MaxSendable,
		})
	}
	return out, nil
}

func (s *UserService) getRandomSalt() []byte { return common.GenerateRandByteArray(32) }
