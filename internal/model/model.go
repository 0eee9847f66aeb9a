// Package model defines domain entities used by services and stores.
package model

import "time"

// Role is a guild role tier stored on a member document.
type Role string

// Known role tiers. Anything else sorts as a regular member.
const (
	RoleGuildMaster Role = "guild_master"
	RoleDeputy      Role = "deputy"
	RoleMember      Role = "member"
)

// Status is the approval state of a member.
type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
)

// DefaultOrder places a member without an explicit order last.
const DefaultOrder = 999

// Member is a guild roster entry.
type Member struct {
	ID        string
	Name      string
	Email     string
	Avatar    string
	Role      Role
	Status    Status
	Order     int // DefaultOrder when unset
	Tags      []string
	Bio       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Photo is a gallery entry referencing an uploaded image.
type Photo struct {
	ID         string
	Title      string
	URL        string
	Path       string
	UploadedBy string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Notice is a guild announcement.
type Notice struct {
	ID        string
	Title     string
	Content   string
	Author    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats aggregates roster and gallery counts.
type Stats struct {
	MemberCount int
	PhotoCount  int
	UpdatedAt   time.Time
}

// BanReason is the enumerated cause recorded on a ban.
type BanReason string

const (
	// BanReasonRapidRefresh marks a refresh-storm ban (shorter penalty).
	BanReasonRapidRefresh BanReason = "RapidRefresh"
	// BanReasonRateLimit marks a sustained request-volume ban (longer penalty).
	BanReasonRateLimit BanReason = "RateLimitExceeded"
)

// BanRecord is the persisted access denial for one client IP.
//
// ExpiresAt is the sole authority for whether the ban is currently enforced;
// IsActive is an administrative override. Enforcement is the conjunction
// IsActive && now < ExpiresAt. The two fields are never reconciled.
type BanRecord struct {
	IP           string
	IsActive     bool
	Reason       BanReason
	BanCount     int // refresh counter at ban time
	RequestCount int // request window length at ban time
	UserAgent    string
	BannedAt     time.Time
	ExpiresAt    time.Time
	UnbannedAt   time.Time // zero until an explicit unban
}

// Enforced reports whether the record blocks access at the given instant.
func (b *BanRecord) Enforced(now time.Time) bool {
	return b != nil && b.IsActive && now.Before(b.ExpiresAt)
}

// Tokens collects issued access/refresh tokens from the identity provider.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry
}

// User is the authenticated identity as reported by the identity provider.
type User struct {
	UID         string
	Email       string
	DisplayName string
}
