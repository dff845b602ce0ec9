package authpw

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"golang.org/x/crypto/bcrypt"

	"sheetkeeper/api/internal/docstore"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := NewService(docstore.NewMemoryStore())
	s.cost = bcrypt.MinCost
	return s
}

func TestSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	account, err := s.SignUp(ctx, SignUpRequest{Email: " Avery@Example.com ", Password: "correct-horse", DisplayName: "Avery"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if account.IdentityID == "" || account.Email != "avery@example.com" {
		t.Fatalf("account = %+v", account)
	}

	signedIn, err := s.SignIn(ctx, SignInRequest{Email: "AVERY@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if signedIn.IdentityID != account.IdentityID || signedIn.DisplayName != "Avery" {
		t.Fatalf("signed in as %+v, want %+v", signedIn, account)
	}
}

func TestSignUpValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	if _, err := s.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "long-enough", DisplayName: "A"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		req  SignUpRequest
		want error
	}{
		{name: "missing fields", req: SignUpRequest{Email: "x@y.z"}, want: ErrInvalidInput},
		{name: "short password", req: SignUpRequest{Email: "x@y.z", Password: "short", DisplayName: "X"}, want: ErrInvalidInput},
		{name: "malformed email", req: SignUpRequest{Email: "nobody", Password: "long-enough", DisplayName: "X"}, want: ErrInvalidInput},
		{name: "duplicate", req: SignUpRequest{Email: "A@B.C", Password: "long-enough", DisplayName: "A"}, want: ErrEmailTaken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.SignUp(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("SignUp() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	if _, err := s.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "long-enough", DisplayName: "A"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SignIn(ctx, SignInRequest{Email: "a@b.c", Password: "wrong-password"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password error = %v", err)
	}
	if _, err := s.SignIn(ctx, SignInRequest{Email: "nobody@b.c", Password: "long-enough"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email error = %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	if _, err := s.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "long-enough", DisplayName: "A"}); err != nil {
		t.Fatal(err)
	}
	if err := s.ChangePassword(ctx, ChangePasswordRequest{Email: "a@b.c", Password: "long-enough", NewPassword: "even-longer"}); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := s.SignIn(ctx, SignInRequest{Email: "a@b.c", Password: "long-enough"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still works: %v", err)
	}
	if _, err := s.SignIn(ctx, SignInRequest{Email: "a@b.c", Password: "even-longer"}); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestAccountsOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := docstore.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	s := NewService(store)
	s.cost = bcrypt.MinCost

	ctx := context.Background()
	account, err := s.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "long-enough", DisplayName: "A"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.SignIn(ctx, SignInRequest{Email: "a@b.c", Password: "long-enough"})
	if err != nil || got.IdentityID != account.IdentityID || got.CreatedAt.IsZero() {
		t.Fatalf("SignIn() = %+v, %v", got, err)
	}
}
