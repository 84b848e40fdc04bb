package models

import "time"

const (
	RoleOwner  = "owner"
	RoleMember = "member"

	MembershipActive = "active"
	MembershipLeft   = "left"
)

// MaxRoomNameLength bounds room names at creation time.
const MaxRoomNameLength = 80

type Room struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Code         string    `json:"code"`
	OwnerID      int64     `json:"owner_id"`
	OwnerName    string    `json:"owner_name,omitempty"`
	IsActive     bool      `json:"is_active"`
	LastActiveAt time.Time `json:"last_active_at"`
	CreatedAt    time.Time `json:"created_at"`

	// MembershipRole is the requesting user's role, filled by listing and
	// lookup queries.
	MembershipRole string `json:"membership_role,omitempty"`
}

type Membership struct {
	ID       int64      `json:"id"`
	RoomID   int64      `json:"room_id"`
	UserID   int64      `json:"user_id"`
	Role     string     `json:"role"`
	Status   string     `json:"status"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type JoinRoomRequest struct {
	Code string `json:"code"`
}
