// Package rbac decides what an actor may do with a character document.
// There are two tiers: the document's owner and the elevated overseer.
package rbac

type Role string
type Action string

const (
	RoleNone     Role = "none"
	RoleOwner    Role = "owner"
	RoleOverseer Role = "overseer"
)

const (
	ActionWrite      Action = "write"
	ActionSoftDelete Action = "soft_delete"
	ActionRestore    Action = "restore"
	ActionPurge      Action = "purge"
	// ActionReadDeleted covers listing and opening soft-deleted documents.
	ActionReadDeleted Action = "read_deleted"
	// ActionListAll covers scanning every owner partition.
	ActionListAll Action = "list_all"
)

// RoleFor resolves the role an actor holds over a document owned by
// ownerID. Elevation wins over ownership.
func RoleFor(actorID string, elevated bool, ownerID string) Role {
	switch {
	case elevated:
		return RoleOverseer
	case actorID != "" && actorID == ownerID:
		return RoleOwner
	default:
		return RoleNone
	}
}

func Can(role Role, action Action) bool {
	switch role {
	case RoleOverseer:
		return true
	case RoleOwner:
		return action == ActionWrite || action == ActionSoftDelete
	default:
		return false
	}
}

// Allowed is RoleFor followed by Can.
func Allowed(actorID string, elevated bool, ownerID string, action Action) bool {
	return Can(RoleFor(actorID, elevated, ownerID), action)
}
