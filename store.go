package tomikal

import (
	"context"
	"fmt"
	"os"
)

// OpenSessionStore builds the store named by c.SessionStore. The returned func releases any
// connection the store holds.
func OpenSessionStore(ctx context.Context, c Config) (SessionStore, func(), error) {
	noop := func() {}

	switch c.SessionStore {
	case "memory":
		return NewMemoryStore(), noop, nil
	case "redis":
		store, rdb, err := OpenRedisStore(ctx, c.RedisUrl)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { rdb.Close() }, nil
	case "postgres":
		sessionID, err := os.Hostname()
		if err != nil || sessionID == "" {
			sessionID = "default"
		}

		store, pool, err := OpenPostgresStore(ctx, c.PostgresUrl, sessionID)
		if err != nil {
			return nil, noop, err
		}
		return store, pool.Close, nil
	case "file", "":
		return NewFileStore(c.SessionPath), noop, nil
	}

	return nil, noop, fmt.Errorf("unknown session store %q", c.SessionStore)
}
