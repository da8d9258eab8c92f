package device

import (
	"regexp"
	"time"
)

// ActiveWindow is how recently a device must have been seen to count as active.
const ActiveWindow = 5 * time.Minute

var identityPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// ValidIdentity reports whether id is a 32-character lowercase hex device identity.
func ValidIdentity(id string) bool {
	return identityPattern.MatchString(id)
}

// Metadata is optional descriptive information supplied at explicit registration.
type Metadata struct {
	Model          string `json:"model,omitempty"`
	Manufacturer   string `json:"manufacturer,omitempty"`
	AndroidVersion string `json:"androidVersion,omitempty"`
	AppVersion     string `json:"appVersion,omitempty"`
}

// Record is the registry's view of one device. Callers only ever receive copies.
type Record struct {
	Identity         string
	CredentialDigest string
	RegisteredAt     time.Time
	LastSeen         time.Time
	UploadCount      int64
	Metadata         Metadata
}

// Stats is the public, digest-free projection of a Record.
type Stats struct {
	DeviceID     string    `json:"deviceId"`
	RegisteredAt time.Time `json:"registeredAt"`
	LastSeen     time.Time `json:"lastSeen"`
	UploadCount  int64     `json:"uploadCount"`
	IsActive     bool      `json:"isActive"`
	Metadata     Metadata  `json:"deviceInfo"`
}

func (r Record) stats(now time.Time) Stats {
	return Stats{
		DeviceID:     r.Identity,
		RegisteredAt: r.RegisteredAt,
		LastSeen:     r.LastSeen,
		UploadCount:  r.UploadCount,
		IsActive:     now.Sub(r.LastSeen) < ActiveWindow,
		Metadata:     r.Metadata,
	}
}
