package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"sheetkeeper/api/internal/auth"
	"sheetkeeper/api/internal/authpw"
	"sheetkeeper/api/internal/character"
	"sheetkeeper/api/internal/docstore"
	"sheetkeeper/api/internal/engine"
	"sheetkeeper/api/internal/export"
	"sheetkeeper/api/internal/search"
	"sheetkeeper/api/internal/session"
)

// PortraitStore uploads portrait images and returns their public URI.
type PortraitStore interface {
	Upload(ctx context.Context, ownerID, documentID, contentType string, body io.Reader, size int64) (string, error)
}

// Exporter renders a character sheet.
type Exporter interface {
	Export(ctx context.Context, doc character.Document, format export.Format) (*export.Result, error)
}

// Deps wires the service to its collaborators. Portraits and Exporter are
// optional; without Search the service scans the store and without
// Revocations signed-out tokens are remembered in memory.
type Deps struct {
	Store       docstore.Store
	Registry    *engine.Registry
	Issuer      *auth.Issuer
	Accounts    *authpw.Service
	Revocations session.Revocations
	Search      *search.Service
	Portraits   PortraitStore
	Exporter    Exporter
}

// Service binds signed-in identities to engine sessions and exposes the
// command surface used by the HTTP layer.
type Service struct {
	store       docstore.Store
	registry    *engine.Registry
	issuer      *auth.Issuer
	accounts    *authpw.Service
	revocations session.Revocations
	search      *search.Service
	portraits   PortraitStore
	exporter    Exporter
}

func New(deps Deps) *Service {
	if deps.Search == nil {
		deps.Search = search.NewService(nil, search.NewScan(deps.Store))
	}
	if deps.Revocations == nil {
		deps.Revocations = session.NewMemoryStore()
	}
	return &Service{
		store:       deps.Store,
		registry:    deps.Registry,
		issuer:      deps.Issuer,
		accounts:    deps.Accounts,
		revocations: deps.Revocations,
		search:      deps.Search,
		portraits:   deps.Portraits,
		exporter:    deps.Exporter,
	}
}

// Grant is what a successful sign-up or sign-in returns.
type Grant struct {
	AccessToken string       `json:"accessToken"`
	ExpiresAt   int64        `json:"expiresAt"`
	State       engine.State `json:"state"`
}

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Grant, error) {
	account, err := s.accounts.SignUp(ctx, authpw.SignUpRequest{Email: email, Password: password, DisplayName: displayName})
	if err != nil {
		return Grant{}, err
	}
	return s.grant(ctx, account)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Grant, error) {
	account, err := s.accounts.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Grant{}, err
	}
	return s.grant(ctx, account)
}

func (s *Service) ChangePassword(ctx context.Context, email, password, newPassword string) error {
	return s.accounts.ChangePassword(ctx, authpw.ChangePasswordRequest{Email: email, Password: password, NewPassword: newPassword})
}

func (s *Service) grant(ctx context.Context, account authpw.Account) (Grant, error) {
	sess, err := s.registry.Acquire(ctx, account.IdentityID, account.DisplayName)
	if err != nil {
		return Grant{}, err
	}
	token, exp, err := s.issuer.Issue(account.IdentityID, account.DisplayName)
	if err != nil {
		return Grant{}, fmt.Errorf("issue token: %w", err)
	}
	log.Printf("app: identity %s signed in", account.IdentityID)
	return Grant{AccessToken: token, ExpiresAt: exp.Unix(), State: sess.State()}, nil
}

// SessionFromToken resolves a bearer token to the identity's live session,
// signing it in again if the process restarted since the token was issued.
func (s *Service) SessionFromToken(ctx context.Context, token string) (*engine.Session, error) {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.JTI)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, auth.ErrInvalidToken
	}
	if sess, ok := s.registry.Lookup(claims.Sub); ok {
		return sess, nil
	}
	return s.registry.Acquire(ctx, claims.Sub, claims.Name)
}

// SignOut is the identity-lost signal: the token is revoked, pending edits
// are flushed and the session resets and is dropped.
func (s *Service) SignOut(ctx context.Context, sess *engine.Session, token string) error {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return err
	}
	if err := s.revocations.Revoke(ctx, claims.JTI, time.Unix(claims.Exp, 0)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	actor := sess.Actor()
	if !actor.SignedIn() {
		return nil
	}
	if err := sess.Flush(ctx); err != nil {
		log.Printf("app: flush on sign-out for %s: %v", actor.IdentityID, err)
	}
	return s.registry.Release(ctx, actor.IdentityID)
}

func (s *Service) Search(sess *engine.Session, text string, limit, offset int) search.Response {
	actor := sess.Actor()
	q := search.Query{
		Text:       strings.TrimSpace(text),
		IdentityID: actor.IdentityID,
		IsElevated: actor.IsElevated,
		Limit:      limit,
		Offset:     offset,
	}
	return s.search.Search(q)
}

// UploadPortrait stores an image for the open character and points its
// photoUri at it.
func (s *Service) UploadPortrait(ctx context.Context, sess *engine.Session, contentType string, body io.Reader, size int64) (engine.State, error) {
	if s.portraits == nil {
		return engine.State{}, domainError(http.StatusServiceUnavailable, "PORTRAITS_UNAVAILABLE", "Portrait storage not configured", nil)
	}
	state := sess.State()
	if state.Document == nil {
		return engine.State{}, engine.ErrNoSelection
	}
	if !sess.CanWrite() {
		return engine.State{}, engine.ErrPermissionDenied
	}
	uri, err := s.portraits.Upload(ctx, state.Document.OwnerID, state.Document.ID, contentType, body, size)
	if err != nil {
		return engine.State{}, err
	}
	if err := sess.MutatePath("photoUri", uri); err != nil {
		return engine.State{}, err
	}
	return sess.State(), nil
}

// Export flushes pending edits and renders the open character.
func (s *Service) Export(ctx context.Context, sess *engine.Session, format export.Format) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export not configured", nil)
	}
	if err := sess.Flush(ctx); err != nil {
		return nil, err
	}
	state := sess.State()
	if state.Document == nil {
		return nil, engine.ErrNoSelection
	}
	ctx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()
	return s.exporter.Export(ctx, *state.Document, format)
}

func (s *Service) Ping(ctx context.Context) error {
	if s.store == nil {
		return errors.New("store not configured")
	}
	return s.store.Ping(ctx)
}

func (s *Service) SearchHealthy() bool {
	return s.search.MeiliHealthy()
}
