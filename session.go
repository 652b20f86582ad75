package tomikal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tomikal/sacco"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

// SessionStore persists the two session entries. Delete removes every key in one operation.
type SessionStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Credentials is what a signed in screen works with.
type Credentials struct {
	Token string
	User  sacco.User
	// ExpiresAt comes from the token's exp claim and is zero when the token does not carry one.
	ExpiresAt time.Time
}

func (c Credentials) Can(p Permission) bool {
	return Can(c.User, p)
}

// Session is the single source of truth for who is signed in.
type Session struct {
	client   sacco.Client
	store    SessionStore
	validate *validator.Validate
}

func NewSession(client sacco.Client, store SessionStore) *Session {
	return &Session{
		client:   client,
		store:    store,
		validate: validator.New(),
	}
}

type loginInput struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

// Login signs the member in and persists the token and profile.
func (s *Session) Login(ctx context.Context, username, password string) (sacco.User, error) {
	input := loginInput{Username: strings.TrimSpace(username), Password: password}
	if err := s.validate.Struct(input); err != nil {
		return sacco.User{}, &FormError{Message: msgMissingCredentials}
	}

	response, err := s.client.Login(ctx, input.Username, input.Password)
	if err != nil {
		log.Printf("[SESSION] login failed for %s: %v", input.Username, err)
		return sacco.User{}, err
	}

	userJson, err := json.Marshal(response.User)
	if err != nil {
		return sacco.User{}, fmt.Errorf("unable to marshal user: %w", err)
	}

	if err := s.store.Set(ctx, AccessTokenKey, response.Tokens.Access); err != nil {
		return sacco.User{}, fmt.Errorf("unable to store access token: %w", err)
	}
	if err := s.store.Set(ctx, UserKey, string(userJson)); err != nil {
		// a token without its user is not a session
		if cleanupErr := s.store.Delete(ctx, AccessTokenKey, UserKey); cleanupErr != nil {
			log.Printf("[SESSION] unable to clear partial session: %v", cleanupErr)
		}
		return sacco.User{}, fmt.Errorf("unable to store user: %w", err)
	}

	log.Printf("[SESSION] %s signed in", response.User.FullName())

	return response.User, nil
}

// Logout clears both session entries. The login route is returned even when clearing fails.
func (s *Session) Logout(ctx context.Context) (Route, error) {
	if err := s.store.Delete(ctx, AccessTokenKey, UserKey); err != nil {
		log.Printf("[SESSION] unable to clear session: %v", err)
		return RouteLogin, fmt.Errorf("unable to clear session: %w", err)
	}

	return RouteLogin, nil
}

// Current returns the stored credentials or ErrSessionExpired when either entry is missing.
func (s *Session) Current(ctx context.Context) (Credentials, error) {
	token, ok, err := s.store.Get(ctx, AccessTokenKey)
	if err != nil {
		return Credentials{}, fmt.Errorf("unable to read access token: %w", err)
	}
	if !ok || token == "" {
		return Credentials{}, ErrSessionExpired
	}

	userJson, ok, err := s.store.Get(ctx, UserKey)
	if err != nil {
		return Credentials{}, fmt.Errorf("unable to read user: %w", err)
	}
	if !ok || userJson == "" {
		return Credentials{}, ErrSessionExpired
	}

	user := sacco.User{}
	if err := json.Unmarshal([]byte(userJson), &user); err != nil {
		log.Printf("[SESSION] stored user is unreadable: %v", err)
		return Credentials{}, ErrSessionExpired
	}

	return Credentials{
		Token:     token,
		User:      user,
		ExpiresAt: tokenExpiry(token),
	}, nil
}

func (s *Session) IsAuthenticated(ctx context.Context) bool {
	_, err := s.Current(ctx)
	return err == nil
}

// Authorized returns the credentials together with a client that sends their token.
func (s *Session) Authorized(ctx context.Context) (Credentials, sacco.AuthorizedClient, error) {
	creds, err := s.Current(ctx)
	if err != nil {
		return Credentials{}, sacco.AuthorizedClient{}, err
	}

	return creds, sacco.NewAuthorizedClient(s.client, creds.Token), nil
}

// tokenExpiry reads the exp claim without verifying the token. Only the server can verify it.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return time.Time{}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}

	return exp.Time
}

type RegisterInput struct {
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name" validate:"required"`
	PhoneNumber     string `json:"phoneNumber" validate:"required,numeric,len=10"`
	Email           string `json:"email" validate:"omitempty,email"`
	DOB             string `json:"dob" validate:"required,datetime=2006-01-02"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" validate:"eqfield=Password"`
}

var registerMessages = map[string]string{
	"PhoneNumber":     "Phone number must be 10 digits.",
	"Email":           "Enter a valid email address.",
	"DOB":             "Date of birth must look like 2000-01-31.",
	"Password":        "Password must be at least 6 characters.",
	"ConfirmPassword": "Passwords do not match.",
}

// Register signs a new member up. They can log in once the secretary approves them.
func (s *Session) Register(ctx context.Context, input RegisterInput) (Notice, error) {
	if err := s.validate.Struct(input); err != nil {
		return Notice{}, formErrorFrom(err, registerMessages, msgRegisterInvalid)
	}

	dob, err := time.Parse("2006-01-02", input.DOB)
	if err != nil {
		return Notice{}, &FormError{Field: "DOB", Message: registerMessages["DOB"]}
	}

	response, err := s.client.Signup(ctx, sacco.SignupRequest{
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		PhoneNumber: input.PhoneNumber,
		Email:       input.Email,
		DOB:         sacco.Date{Time: dob},
		Password:    input.Password,
	})
	if err != nil {
		log.Printf("[SESSION] signup failed for %s: %v", input.PhoneNumber, err)
		return Notice{}, err
	}

	message := response.Message
	if message == "" {
		message = msgRegistered
	}

	return Success(message, RouteLogin), nil
}

// formErrorFrom picks the first failing field and turns it into a FormError. Fields without a
// specific message get fallback.
func formErrorFrom(err error, messages map[string]string, fallback string) error {
	validationErrors := validator.ValidationErrors{}
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return &FormError{Message: fallback}
	}

	field := validationErrors[0].Field()
	message, ok := messages[field]
	if !ok || validationErrors[0].Tag() == "required" {
		message = fallback
	}

	return &FormError{Field: field, Message: message}
}
