package tomikal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"tomikal/sacco"

	"github.com/stretchr/testify/require"
)

var (
	member    = sacco.User{ID: "7", Username: "0712345678", FirstName: "Jane", LastName: "Doe"}
	secretary = sacco.User{ID: "2", Username: "0700000002", FirstName: "Sara", LastName: "Kim", IsSecretary: true}
	treasurer = sacco.User{ID: "3", Username: "0700000003", FirstName: "Tom", LastName: "Ngu", IsTreasurer: true}
	admin     = sacco.User{ID: "1", Username: "0700000001", FirstName: "Ada", LastName: "Min", IsAdmin: true}
)

// newTestSession starts a fake API serving mux and returns a session signed in as user. A zero
// user leaves the session signed out.
func newTestSession(t *testing.T, mux *http.ServeMux, user sacco.User) (*Session, *MemoryStore) {
	t.Helper()

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	client, err := sacco.NewClient(ts.URL)
	require.NoError(t, err)

	store := NewMemoryStore()
	if user.ID != "" {
		userJson, err := json.Marshal(user)
		require.NoError(t, err)
		require.NoError(t, store.Set(context.Background(), AccessTokenKey, "abc"))
		require.NoError(t, store.Set(context.Background(), UserKey, string(userJson)))
	}

	return NewSession(client, store), store
}

func respond(body string) http.HandlerFunc {
	return respondWith(http.StatusOK, body)
}

func respondWith(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintln(w, body)
	}
}

const usersJson = `[
	{"id": "1", "first_name": "Ada", "last_name": "Min", "is_admin": true},
	{"id": "2", "first_name": "Sara", "last_name": "Kim", "is_secretary": true},
	{"id": "3", "first_name": "Tom", "last_name": "Ngu", "is_tresurer": true},
	{"id": "5", "first_name": "Eve", "last_name": "Oko"},
	{"id": "6", "first_name": "Ken", "last_name": "Ali"},
	{"id": "7", "first_name": "Jane", "last_name": "Doe"}
]`
