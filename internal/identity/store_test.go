package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashahealth/mediwagon/internal/gateway"
)

func loginResponse() gateway.LoginResponse {
	return gateway.LoginResponse{
		Token: "tok-1",
		User:  &gateway.UserInfo{ID: "u1", Name: "Gayathri", Email: "g@example.com"},
	}
}

func storages(t *testing.T) map[string]func() Storage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "identity.sqlite")
	mem := NewMemoryStorage()
	return map[string]func() Storage{
		"memory": func() Storage { return mem },
		"sqlite": func() Storage {
			s, err := OpenSQLite(context.Background(), path)
			require.NoError(t, err)
			return s
		},
	}
}

func TestLoginSurvivesReload(t *testing.T) {
	for name, open := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := NewStore(open())
			got, err := first.Login(ctx, loginResponse())
			require.NoError(t, err)
			assert.True(t, first.IsAuthenticated())
			before := first.Current()
			assert.Equal(t, got, before)
			if name == "sqlite" {
				require.NoError(t, first.Close())
			}

			reloaded := NewStore(open())
			defer reloaded.Close()
			require.NoError(t, reloaded.Rehydrate(ctx))
			assert.Equal(t, before, reloaded.Current())
			assert.True(t, reloaded.IsAuthenticated())
		})
	}
}

func TestLogoutTwiceEqualsOnce(t *testing.T) {
	for name, open := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := NewStore(open())
			defer store.Close()
			_, err := store.Login(ctx, loginResponse())
			require.NoError(t, err)

			require.NoError(t, store.Logout(ctx))
			once := store.Current()
			require.NoError(t, store.Logout(ctx))
			assert.Equal(t, once, store.Current())
			assert.Equal(t, Session{}, store.Current())
			assert.False(t, store.IsAuthenticated())

			require.NoError(t, store.Rehydrate(ctx))
			assert.False(t, store.IsAuthenticated())
		})
	}
}

func TestLoginRejectsIncompleteResponse(t *testing.T) {
	store := NewStore(NewMemoryStorage())
	ctx := context.Background()

	_, err := store.Login(ctx, gateway.LoginResponse{Token: "tok-1"})
	assert.ErrorIs(t, err, ErrIncompleteSession)
	_, err = store.Login(ctx, gateway.LoginResponse{User: &gateway.UserInfo{ID: "u1"}})
	assert.ErrorIs(t, err, ErrIncompleteSession)
	assert.False(t, store.IsAuthenticated())
}

func TestRehydrateTreatsBadStateAsLoggedOut(t *testing.T) {
	cases := map[string]map[string]string{
		"token only":    {KeyToken: "tok-1"},
		"user only":     {KeyUser: `{"id":"u1","name":"G","email":"g@example.com"}`},
		"corrupt user":  {KeyToken: "tok-1", KeyUser: `{"id":`},
		"user no id":    {KeyToken: "tok-1", KeyUser: `{"name":"G"}`},
		"blank token":   {KeyToken: "  ", KeyUser: `{"id":"u1"}`},
		"nothing saved": {},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			storage := NewMemoryStorage()
			require.NoError(t, storage.Put(context.Background(), values))
			store := NewStore(storage)
			require.NoError(t, store.Rehydrate(context.Background()))
			assert.False(t, store.IsAuthenticated())
			assert.Nil(t, store.Current().User)
		})
	}
}

type failingStorage struct {
	*MemoryStorage
	err error
}

func (f failingStorage) Put(context.Context, map[string]string) error { return f.err }
func (f failingStorage) Delete(context.Context, ...string) error      { return f.err }

func TestStorageFailureLeavesMemoryUnchanged(t *testing.T) {
	ctx := context.Background()
	broken := failingStorage{MemoryStorage: NewMemoryStorage(), err: errors.New("disk full")}
	store := NewStore(broken)

	_, err := store.Login(ctx, loginResponse())
	require.Error(t, err)
	assert.False(t, store.IsAuthenticated())

	ok := NewStore(NewMemoryStorage())
	_, err = ok.Login(ctx, loginResponse())
	require.NoError(t, err)
	ok.storage = broken
	require.Error(t, ok.Logout(ctx))
	assert.True(t, ok.IsAuthenticated(), "failed logout keeps both copies in step")
}

func TestCurrentReturnsCopy(t *testing.T) {
	store := NewStore(NewMemoryStorage())
	_, err := store.Login(context.Background(), loginResponse())
	require.NoError(t, err)

	s := store.Current()
	s.User.Name = "mutated"
	assert.Equal(t, "Gayathri", store.Current().User.Name)
}

func TestNewStorageSelection(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(ctx, "", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, s)

	s, err = NewStorage(ctx, "", filepath.Join(t.TempDir(), "nested", "identity.sqlite"))
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &SQLiteStorage{}, s)
}
