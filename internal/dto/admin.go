package dto

type AdminKeyRequest struct {
	AdminKey string `json:"adminKey"`
}

type SyncUserRequest struct {
	UIDOrEmail string `json:"uidOrEmail"`
	AdminKey   string `json:"adminKey"`
}

const (
	SyncStatusOK       = "ok"
	SyncStatusNotFound = "not_found"

	SyncActionNone        = "none"
	SyncActionLinked      = "linked"
	SyncActionCreated     = "created"
	SyncActionDeactivated = "deactivated"
)

type SyncUserResponse struct {
	Status             string `json:"status"`
	Action             string `json:"action,omitempty"`
	DBUserID           string `json:"dbUserId,omitempty"`
	ExternalIdentityID string `json:"externalIdentityId,omitempty"`
	Message            string `json:"message"`
}

// SweepReport counts what one drift sweep looked at and changed.
type SweepReport struct {
	Direction   string `json:"direction"`
	Checked     int    `json:"checked"`
	Deactivated int    `json:"deactivated,omitempty"`
	Disabled    int    `json:"disabled,omitempty"`
	Skipped     int    `json:"skipped"`
}
