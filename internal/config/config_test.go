package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	var (
		addr = "localhost:8080"
		dsn  = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
		key  = "c29tZV9zZWNyZXQ="
		orig = []string{"http://localhost:3000"}
	)

	tcases := []struct {
		name   string
		params Params
		store  string
		err    bool
	}{
		{
			name:   "valid memory config",
			params: Params{ServerAddr: addr, AllowedOrigins: orig, SigningSecret: key, Sync: DefaultSyncConfig()},
			store:  StoreMemory,
		},
		{
			name:   "valid postgres config",
			params: Params{ServerAddr: addr, Store: StorePostgres, DatabaseDSN: dsn, Sync: DefaultSyncConfig()},
			store:  StorePostgres,
		},
		{
			name:   "valid redis config",
			params: Params{ServerAddr: addr, Store: StoreRedis, RedisURL: "redis://localhost:6379/0", Sync: DefaultSyncConfig()},
			store:  StoreRedis,
		},
		{
			name:   "empty address",
			params: Params{ServerAddr: "", Sync: DefaultSyncConfig()},
			err:    true,
		},
		{
			name:   "postgres without DSN",
			params: Params{ServerAddr: addr, Store: StorePostgres, Sync: DefaultSyncConfig()},
			err:    true,
		},
		{
			name:   "redis without URL",
			params: Params{ServerAddr: addr, Store: StoreRedis, Sync: DefaultSyncConfig()},
			err:    true,
		},
		{
			name:   "unknown store",
			params: Params{ServerAddr: addr, Store: "sqlite", Sync: DefaultSyncConfig()},
			err:    true,
		},
		{
			name:   "invalid signing key",
			params: Params{ServerAddr: addr, SigningSecret: "invalid_base64", Sync: DefaultSyncConfig()},
			err:    true,
		},
		{
			name:   "zero sync config",
			params: Params{ServerAddr: addr},
			err:    true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := NewConfig(tc.params)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, tc.params.ServerAddr, config.ServerAddr, "expected server address to match")
			assert.Equal(t, tc.store, config.Store, "expected store to match")
			assert.Equal(t, tc.params.AllowedOrigins, config.AllowedOrigins, "expected allowed origins to match")
			assert.Equal(t, tc.params.Sync, config.Sync, "expected sync config to match")
			if tc.params.SigningSecret != "" {
				assert.Equal(t, []byte("some_secret"), config.SigningKey, "expected signing key to be decoded")
			} else {
				assert.Nil(t, config.SigningKey, "expected no signing key")
			}
		})
	}
}

func TestSyncConfig_validate(t *testing.T) {
	valid := DefaultSyncConfig()
	assert.NoError(t, valid.validate())

	tooSlow := valid
	tooSlow.SweepInterval = 2 * valid.IdleTimeout
	assert.Error(t, tooSlow.validate(), "expected sweep interval beyond idle timeout to be rejected")

	noRate := valid
	noRate.MessageRate = 0
	assert.Error(t, noRate.validate())

	noRoomTimeout := valid
	noRoomTimeout.RoomIdleTimeout = -time.Second
	assert.Error(t, noRoomTimeout.validate())
}

func Test_decodeSigningKey(t *testing.T) {
	tcases := []struct {
		name         string
		base64Secret string
		expectedKey  []byte
		expectError  bool
	}{
		{
			name:         "valid base64 secret",
			base64Secret: "c29tZV9zZWNyZXQ=",
			expectedKey:  []byte("some_secret"),
			expectError:  false,
		},
		{
			name:         "invalid base64 secret",
			base64Secret: "invalid_base64",
			expectedKey:  nil,
			expectError:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := decodeSigningSecret(tc.base64Secret)
			if tc.expectError {
				assert.Error(t, err, "expected error for base64 secret: %s", tc.base64Secret)
			} else {
				assert.NoError(t, err, "expected no error for base64 secret: %s", tc.base64Secret)
				assert.Equal(t, tc.expectedKey, key, "expected decoded key to match for base64 secret: %s", tc.base64Secret)
			}
		})
	}
}
