package app

import (
	"net/http"
	"testing"
	"time"

	"sheetkeeper/api/internal/auth"
	"sheetkeeper/api/internal/docstore"
	"sheetkeeper/api/internal/engine"
)

func TestSignUpBootstrapsProfileAndSession(t *testing.T) {
	env := newTestEnv(t, Deps{})

	rr := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email": "  Avery@Example.com ", "password": "correct-horse", "displayName": "Avery",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var grant Grant
	decodeJSON(t, rr, &grant)
	if grant.AccessToken == "" || grant.ExpiresAt == 0 {
		t.Fatalf("expected token and expiry, got %+v", grant)
	}
	actor := grant.State.Actor
	if actor.IdentityID == "" || actor.DisplayLabel != "Avery" || actor.IsElevated {
		t.Fatalf("unexpected actor %+v", actor)
	}

	profile, err := env.store.Get(t.Context(), docstore.ProfileKey(actor.IdentityID))
	if err != nil {
		t.Fatalf("profile not bootstrapped: %v", err)
	}
	if profile["isElevated"] != false {
		t.Fatalf("profile isElevated = %v", profile["isElevated"])
	}

	rr = env.do(t, http.MethodGet, "/api/session", grant.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("session: status %d", rr.Code)
	}
	if state := decodeState(t, rr); state.Actor.IdentityID != actor.IdentityID {
		t.Fatalf("session actor = %+v", state.Actor)
	}
}

func TestSignUpRejectsDuplicatesAndBadInput(t *testing.T) {
	env := newTestEnv(t, Deps{})
	env.signUp(t, "avery@example.com", "Avery")

	tests := []struct {
		name string
		body map[string]any
		want int
		code string
	}{
		{name: "duplicate", body: map[string]any{"email": "AVERY@example.com", "password": "correct-horse", "displayName": "Other"}, want: http.StatusConflict, code: "EMAIL_TAKEN"},
		{name: "short password", body: map[string]any{"email": "b@example.com", "password": "short", "displayName": "B"}, want: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR"},
		{name: "missing name", body: map[string]any{"email": "c@example.com", "password": "correct-horse"}, want: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/auth/signup", "", tc.body)
			if rr.Code != tc.want {
				t.Fatalf("expected status %d, got %d body=%s", tc.want, rr.Code, rr.Body.String())
			}
			var payload map[string]any
			decodeJSON(t, rr, &payload)
			if payload["code"] != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, payload["code"])
			}
		})
	}
}

func TestSignInAndWrongPassword(t *testing.T) {
	env := newTestEnv(t, Deps{})
	env.signUp(t, "avery@example.com", "Avery")

	rr := env.do(t, http.MethodPost, "/api/auth/signin", "", map[string]any{"email": "avery@example.com", "password": "wrong-horse"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/auth/signin", "", map[string]any{"email": "avery@example.com", "password": "correct-horse"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var grant Grant
	decodeJSON(t, rr, &grant)
	if grant.State.Actor.DisplayLabel != "Avery" {
		t.Fatalf("unexpected actor %+v", grant.State.Actor)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	issuer := auth.NewIssuer("test-secret", time.Hour)
	env := newTestEnv(t, Deps{Issuer: issuer})

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: mustIssue(t, auth.NewIssuer("other-secret", time.Hour))},
		{name: "expired", token: expiredToken(t)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, "/api/session", tc.token, nil)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
		})
	}
}

func mustIssue(t *testing.T, issuer *auth.Issuer) string {
	t.Helper()
	token, _, err := issuer.Issue("usr_1", "Someone")
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func expiredToken(t *testing.T) string {
	t.Helper()
	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{Sub: "usr_1", Name: "Someone", JTI: "jti_1", Exp: time.Now().Add(-time.Minute).Unix()})
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestTokenSurvivesRestart(t *testing.T) {
	env := newTestEnv(t, Deps{})
	token := env.signUp(t, "avery@example.com", "Avery")

	// A fresh registry over the same store models a process restart.
	restarted := newTestEnv(t, Deps{
		Store:    env.store,
		Issuer:   auth.NewIssuer("test-secret", time.Hour),
		Registry: engine.NewRegistry(env.store, engine.Options{}),
	})
	rr := restarted.do(t, http.MethodGet, "/api/session", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after restart, got %d", rr.Code)
	}
	if state := decodeState(t, rr); state.Actor.DisplayLabel != "Avery" {
		t.Fatalf("actor after restart = %+v", state.Actor)
	}
}

func TestSignOutReleasesSession(t *testing.T) {
	env := newTestEnv(t, Deps{})
	token := env.signUp(t, "avery@example.com", "Avery")
	claims, err := auth.NewIssuer("test-secret", time.Hour).Parse(token)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := env.registry.Lookup(claims.Sub); !ok {
		t.Fatal("expected a live session after sign-up")
	}

	rr := env.do(t, http.MethodPost, "/api/auth/signout", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("signout: status %d", rr.Code)
	}
	if _, ok := env.registry.Lookup(claims.Sub); ok {
		t.Fatal("session still registered after sign-out")
	}

	rr = env.do(t, http.MethodGet, "/api/session", token, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token: expected 401, got %d", rr.Code)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t, Deps{})
	env.signUp(t, "avery@example.com", "Avery")

	rr := env.do(t, http.MethodPost, "/api/auth/password", "", map[string]any{
		"email": "avery@example.com", "password": "correct-horse", "newPassword": "battery-staple",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("change password: status %d body=%s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodPost, "/api/auth/signin", "", map[string]any{"email": "avery@example.com", "password": "battery-staple"})
	if rr.Code != http.StatusOK {
		t.Fatalf("signin with new password: status %d", rr.Code)
	}
}
