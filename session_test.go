package tomikal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tomikal/sacco"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginPersistsTokenAndUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login/", respond(`{"tokens": {"access": "abc", "refresh": "def"}, "user": {"id": "7", "username": "0712345678", "first_name": "Jane", "last_name": "Doe"}}`))

	session, store := newTestSession(t, mux, sacco.User{})
	ctx := context.Background()

	user, err := session.Login(ctx, "0712345678", "secret")
	require.NoError(t, err)
	assert.Equal(t, "7", user.ID)

	token, ok, err := store.Get(ctx, AccessTokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	userJson, ok, err := store.Get(ctx, UserKey)
	require.NoError(t, err)
	require.True(t, ok)
	stored := sacco.User{}
	require.NoError(t, json.Unmarshal([]byte(userJson), &stored))
	assert.Equal(t, "Jane", stored.FirstName)

	assert.True(t, session.IsAuthenticated(ctx))

	view, err := Dashboard(ctx, session, "Tomikal SHG")
	require.NoError(t, err)
	assert.Equal(t, "Tomikal SHG", view.Header.OrgName)
	assert.Equal(t, "Jane Doe", view.Header.Name)
}

func TestLoginRequiresBothFields(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})

	session, _ := newTestSession(t, mux, sacco.User{})

	for _, creds := range [][2]string{{"", "secret"}, {"jane", ""}, {"   ", "secret"}} {
		_, err := session.Login(context.Background(), creds[0], creds[1])

		formErr := &FormError{}
		require.True(t, errors.As(err, &formErr))
		assert.Equal(t, "Please enter both username and password.", formErr.Message)
	}

	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestLoginWithoutAccessTokenStoresNothing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login/", respond(`{"tokens": {"refresh": "def"}, "user": {"id": "7"}}`))

	session, store := newTestSession(t, mux, sacco.User{})
	ctx := context.Background()

	_, err := session.Login(ctx, "jane", "secret")
	require.ErrorIs(t, err, sacco.MissingAccessTokenError)
	assert.Equal(t, "Access token not found in the response.", NoticeFor(err, "x").Message)

	_, ok, _ := store.Get(ctx, AccessTokenKey)
	assert.False(t, ok)
	assert.False(t, session.IsAuthenticated(ctx))
}

func TestLoginRejectedByServer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login/", respondWith(http.StatusBadRequest, `{"non_field_errors": ["Invalid credentials or account not approved."]}`))

	session, _ := newTestSession(t, mux, sacco.User{})

	_, err := session.Login(context.Background(), "jane", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials or account not approved.", NoticeFor(err, "Login failed.").Message)
}

func TestLogoutClearsBothKeys(t *testing.T) {
	session, store := newTestSession(t, http.NewServeMux(), member)
	ctx := context.Background()
	require.True(t, session.IsAuthenticated(ctx))

	route, err := session.Logout(ctx)
	require.NoError(t, err)
	assert.Equal(t, RouteLogin, route)

	_, ok, _ := store.Get(ctx, AccessTokenKey)
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, UserKey)
	assert.False(t, ok)
	assert.False(t, session.IsAuthenticated(ctx))

	_, err = session.Current(ctx)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestLogoutAfterFailedRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/balance/", respondWith(http.StatusInternalServerError, `oops`))

	session, store := newTestSession(t, mux, member)
	ctx := context.Background()

	screen := NewBalanceScreen(session)
	require.Error(t, screen.Load(ctx))

	route, err := session.Logout(ctx)
	require.NoError(t, err)
	assert.Equal(t, RouteLogin, route)

	_, ok, _ := store.Get(ctx, AccessTokenKey)
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, UserKey)
	assert.False(t, ok)
}

type brokenStore struct {
	MemoryStore
}

func (b *brokenStore) Delete(ctx context.Context, keys ...string) error {
	return errors.New("disk on fire")
}

func TestLogoutRoutesToLoginEvenWhenStoreFails(t *testing.T) {
	client, err := sacco.NewClient("http://127.0.0.1:1")
	require.NoError(t, err)

	session := NewSession(client, &brokenStore{MemoryStore: MemoryStore{entries: map[string]string{}}})

	route, err := session.Logout(context.Background())
	assert.Error(t, err)
	assert.Equal(t, RouteLogin, route)
}

type userlessStore struct {
	MemoryStore
}

func (u *userlessStore) Set(ctx context.Context, key, value string) error {
	if key == UserKey {
		return errors.New("disk full")
	}

	return u.MemoryStore.Set(ctx, key, value)
}

func TestLoginLeavesNoTokenWhenUserCannotBeStored(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login/", respond(`{"tokens": {"access": "abc", "refresh": "def"}, "user": {"id": "7", "first_name": "Jane"}}`))

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	client, err := sacco.NewClient(ts.URL)
	require.NoError(t, err)

	store := &userlessStore{MemoryStore: MemoryStore{entries: map[string]string{}}}
	session := NewSession(client, store)
	ctx := context.Background()

	_, err = session.Login(ctx, "0712345678", "secret")
	assert.Error(t, err)

	_, ok, _ := store.Get(ctx, AccessTokenKey)
	assert.False(t, ok)
	assert.False(t, session.IsAuthenticated(ctx))
}

func TestCurrentNeedsTokenAndUser(t *testing.T) {
	session, store := newTestSession(t, http.NewServeMux(), sacco.User{})
	ctx := context.Background()

	_, err := session.Current(ctx)
	assert.ErrorIs(t, err, ErrSessionExpired)

	require.NoError(t, store.Set(ctx, AccessTokenKey, "abc"))
	_, err = session.Current(ctx)
	assert.ErrorIs(t, err, ErrSessionExpired)

	require.NoError(t, store.Set(ctx, UserKey, "{not json"))
	_, err = session.Current(ctx)
	assert.ErrorIs(t, err, ErrSessionExpired)

	require.NoError(t, store.Set(ctx, UserKey, `{"id": "7", "first_name": "Jane"}`))
	creds, err := session.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", creds.Token)
	assert.Equal(t, "7", creds.User.ID)
	assert.True(t, creds.ExpiresAt.IsZero())
}

func TestCredentialsCarryTokenExpiry(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "7",
		"exp":     expiresAt.Unix(),
	}).SignedString([]byte("not-the-server-key"))
	require.NoError(t, err)

	session, store := newTestSession(t, http.NewServeMux(), member)
	require.NoError(t, store.Set(context.Background(), AccessTokenKey, token))

	creds, err := session.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, expiresAt.Equal(creds.ExpiresAt))
}

func TestUnauthorizedResponseExpiresSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/balance/", respondWith(http.StatusUnauthorized, `{"detail": "Given token not valid for any token type"}`))

	session, _ := newTestSession(t, mux, member)
	screen := NewBalanceScreen(session)

	err := screen.Load(context.Background())
	require.ErrorIs(t, err, sacco.UnauthorizedError)

	view := screen.View()
	assert.Equal(t, PhaseError, view.Phase)
	require.NotNil(t, view.Notice)
	assert.Equal(t, NoticeSessionExpired, view.Notice.Kind)
	assert.Equal(t, "Session expired. Please log in again.", view.Notice.Message)
	assert.Equal(t, RouteLogin, view.Notice.Route)
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/signup/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"first_name": "Eve", "last_name": "Oko", "phoneNumber": "0711111111", "dob": "1990-05-01", "password": "secret1"}`, string(body))
		respondWith(http.StatusCreated, `{"message": "User registered successfully. Await approval.", "user": {"id": "9"}}`)(w, r)
	})

	session, _ := newTestSession(t, mux, sacco.User{})

	notice, err := session.Register(context.Background(), RegisterInput{
		FirstName:       "Eve",
		LastName:        "Oko",
		PhoneNumber:     "0711111111",
		DOB:             "1990-05-01",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, NoticeSuccess, notice.Kind)
	assert.Equal(t, "User registered successfully. Await approval.", notice.Message)
	assert.Equal(t, RouteLogin, notice.Route)
}

func TestRegisterValidation(t *testing.T) {
	session, _ := newTestSession(t, http.NewServeMux(), sacco.User{})

	valid := RegisterInput{
		FirstName:       "Eve",
		LastName:        "Oko",
		PhoneNumber:     "0711111111",
		DOB:             "1990-05-01",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}

	tests := []struct {
		name    string
		mutate  func(*RegisterInput)
		message string
	}{
		{"missing name", func(in *RegisterInput) { in.FirstName = "" }, "Please fill in all required fields correctly."},
		{"short phone", func(in *RegisterInput) { in.PhoneNumber = "07111" }, "Phone number must be 10 digits."},
		{"bad email", func(in *RegisterInput) { in.Email = "eve" }, "Enter a valid email address."},
		{"bad dob", func(in *RegisterInput) { in.DOB = "01/05/1990" }, "Date of birth must look like 2000-01-31."},
		{"short password", func(in *RegisterInput) { in.Password, in.ConfirmPassword = "abc", "abc" }, "Password must be at least 6 characters."},
		{"mismatched password", func(in *RegisterInput) { in.ConfirmPassword = "other1" }, "Passwords do not match."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := valid
			tt.mutate(&input)

			_, err := session.Register(context.Background(), input)
			formErr := &FormError{}
			require.True(t, errors.As(err, &formErr))
			assert.Equal(t, tt.message, formErr.Message)
		})
	}
}
