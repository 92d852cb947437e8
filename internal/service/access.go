package service

import "github.com/mediagallery/gallery-api/internal/domain"

// Owned is implemented by records that may belong to an identity.
type Owned interface {
	OwnerID() *uint
}

// CanAccessOwned grants access iff the caller is an admin or owns the record.
// A record without an owner is reachable only by admins.
func CanAccessOwned(caller *domain.User, ownerID *uint) bool {
	if caller == nil {
		return false
	}
	if caller.IsAdmin() {
		return true
	}
	return ownerID != nil && *ownerID == caller.ID
}
