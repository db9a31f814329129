package persistence

import (
	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/database"
)

// SubscriptionStore is the full record store, including account deletion.
type SubscriptionStore interface {
	domain.SubscriptionRepository
	domain.AccountStore
}

// NewSubscriptionRepository picks the implementation matching the connection's driver.
func NewSubscriptionRepository(conn database.Connection) SubscriptionStore {
	if conn.Driver() == database.DriverPostgres {
		return NewPostgresSubscriptionRepository(conn)
	}
	return NewSQLiteSubscriptionRepository(conn)
}
