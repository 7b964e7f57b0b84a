package models

import (
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStoreNotConfigured also matches ErrStoreUnavailable.
	ErrStoreNotConfigured  = fmt.Errorf("%w: not configured", ErrStoreUnavailable)
	ErrDuplicateExternalId = errors.New("duplicate external id")
	ErrAnomalyNotFound     = errors.New("anomaly not found")
)

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
