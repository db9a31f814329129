package mcp

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.UUID{}, errors.New("id is required")
	}
	id, ok := domain.ParseUserID(value)
	if !ok {
		return uuid.UUID{}, fmt.Errorf("invalid id %q", value)
	}
	return id, nil
}
