package model

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	ownerUserPrefix    = "user:"
	ownerSessionPrefix = "session:"
)

// Owner identifies who a cart belongs to: an authenticated user or an
// anonymous browser session. A set UserID always takes precedence.
type Owner struct {
	UserID       *uint
	SessionToken string
}

func UserOwner(userID uint) Owner {
	return Owner{UserID: &userID}
}

func SessionOwner(token string) Owner {
	return Owner{SessionToken: token}
}

func (o Owner) IsAuthenticated() bool {
	return o.UserID != nil
}

func (o Owner) IsZero() bool {
	return o.UserID == nil && o.SessionToken == ""
}

// Key is the non-null identity persisted in owner_key columns.
func (o Owner) Key() string {
	if o.UserID != nil {
		return ownerUserPrefix + strconv.FormatUint(uint64(*o.UserID), 10)
	}
	return ownerSessionPrefix + o.SessionToken
}

func (o Owner) String() string {
	return o.Key()
}

// ParseOwnerKey reverses Key.
func ParseOwnerKey(key string) (Owner, error) {
	switch {
	case strings.HasPrefix(key, ownerUserPrefix):
		id, err := strconv.ParseUint(strings.TrimPrefix(key, ownerUserPrefix), 10, 64)
		if err != nil {
			return Owner{}, fmt.Errorf("invalid user owner key %q: %w", key, err)
		}
		return UserOwner(uint(id)), nil
	case strings.HasPrefix(key, ownerSessionPrefix):
		token := strings.TrimPrefix(key, ownerSessionPrefix)
		if token == "" {
			return Owner{}, fmt.Errorf("empty session owner key %q", key)
		}
		return SessionOwner(token), nil
	default:
		return Owner{}, fmt.Errorf("unknown owner key %q", key)
	}
}
