// Package authpw provides email/password accounts stored in the document
// store. A successful sign-in yields the identity id that keys the
// actor's character partition and profile record.
package authpw

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sheetkeeper/api/internal/docstore"
	"sheetkeeper/api/internal/util"
)

const minPasswordLength = 8

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type Account struct {
	IdentityID  string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// Service provides email/password authentication
type Service struct {
	store docstore.Store
	cost  int
	now   func() time.Time
}

func NewService(store docstore.Store) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost, now: time.Now}
}

type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUp creates a new account with a fresh identity id.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (Account, error) {
	email := normalizeEmail(req.Email)
	displayName := strings.TrimSpace(req.DisplayName)
	if email == "" || req.Password == "" || displayName == "" {
		return Account{}, fmt.Errorf("%w: email, password, and display name are required", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return Account{}, fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return Account{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	key := accountKey(email)
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return Account{}, fmt.Errorf("check account: %w", err)
	}
	if exists {
		return Account{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}
	account := Account{
		IdentityID:  util.NewID("usr"),
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.MergeWrite(ctx, key, docstore.Fields{
		"identityId":   account.IdentityID,
		"email":        account.Email,
		"displayName":  account.DisplayName,
		"passwordHash": string(hash),
		"createdAt":    account.CreatedAt.Format(time.RFC3339),
	}); err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

type SignInRequest struct {
	Email    string
	Password string
}

// SignIn authenticates an account. Unknown emails and wrong passwords
// produce the same error.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (Account, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return Account{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	fields, err := s.store.Get(ctx, accountKey(email))
	if errors.Is(err, docstore.ErrNotFound) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, fmt.Errorf("load account: %w", err)
	}
	hash, _ := fields["passwordHash"].(string)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return accountFromFields(fields), nil
}

type ChangePasswordRequest struct {
	Email       string
	Password    string
	NewPassword string
}

func (s *Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if len(req.NewPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	account, err := s.SignIn(ctx, SignInRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.MergeWrite(ctx, accountKey(account.Email), docstore.Fields{"passwordHash": string(hash)}); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func accountFromFields(fields docstore.Fields) Account {
	account := Account{}
	account.IdentityID, _ = fields["identityId"].(string)
	account.Email, _ = fields["email"].(string)
	account.DisplayName, _ = fields["displayName"].(string)
	if raw, ok := fields["createdAt"].(string); ok {
		account.CreatedAt, _ = time.Parse(time.RFC3339, raw)
	}
	return account
}

// accountKey hashes the email so arbitrary addresses are valid key
// segments.
func accountKey(email string) docstore.Key {
	sum := sha256.Sum256([]byte(email))
	return docstore.Key{Collection: docstore.CollectionAccounts, ID: hex.EncodeToString(sum[:])}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
