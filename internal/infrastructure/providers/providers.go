package providers

import (
	"github.com/bradfitz/gomemcache/memcache"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/contextly/contextly-ledger/internal/config"
	"github.com/contextly/contextly-ledger/internal/infrastructure/database"
	"github.com/contextly/contextly-ledger/internal/infrastructure/gateway"
)

// NewDatabase opens a Postgres connection using the configured DSN.
func NewDatabase(conf config.Server) (*gorm.DB, error) {
	return database.NewPostgres(conf.PostgresDsn)
}

// MigrateDatabase applies migrations for the application models.
func MigrateDatabase(db *gorm.DB) error {
	return database.MigratePostgres(db)
}

// NewRedis creates the redis client backing sessions and signals.
func NewRedis(conf config.Server) *redis.Client {
	return database.NewRedis(conf.RedisAddr, "", conf.RedisDB)
}

// NewMemcache creates the memcache client for the earnings read cache.
func NewMemcache(addr string) *memcache.Client {
	return database.NewMemcached(addr)
}

// NewSettlementGateway constructs the relay client used to submit
// batches and receive confirmation events.
func NewSettlementGateway(conf config.Settlement, privatekey string) *gateway.SettlementGateway {
	return gateway.NewSettlementGateway(conf.Endpoint, conf.EventEndpoint, privatekey)
}
