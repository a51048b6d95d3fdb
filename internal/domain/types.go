package domain

import "time"

// MaxTags caps the number of interest tags kept on a profile
const MaxTags = 12

// Profile is a member's self-description used as ranking input
type Profile struct {
	MemberID  string    `json:"user_id"`
	GuildID   string    `json:"guild_id"`
	Name      string    `json:"name"`
	Purpose   string    `json:"purpose"`
	Interests []string  `json:"interests"`
	Intro     string    `json:"intro"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one entry of a member's interaction history
type Message struct {
	ID        string    `json:"id"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	MemberID  string    `json:"user_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"ts"`
}

// MaxMessageLen clips logged message content
const MaxMessageLen = 2000

// MatchStatus is the lifecycle state of a match
type MatchStatus string

const (
	StatusProposed     MatchStatus = "proposed"
	StatusCandAccepted MatchStatus = "cand_accepted"
	StatusConfirmed    MatchStatus = "confirmed"
	StatusClosed       MatchStatus = "closed"
	StatusDeclined     MatchStatus = "declined"
)

// Terminal reports whether no further transition can leave s
func (s MatchStatus) Terminal() bool {
	return s == StatusClosed || s == StatusDeclined
}

// Valid reports whether s is a known status
func (s MatchStatus) Valid() bool {
	switch s {
	case StatusProposed, StatusCandAccepted, StatusConfirmed, StatusClosed, StatusDeclined:
		return true
	}
	return false
}

// Match is the durable record of one proposed pairing
type Match struct {
	ID          string      `json:"id"`
	GuildID     string      `json:"guild_id"`
	RequesterID string      `json:"requester_id"`
	CandidateID string      `json:"candidate_id"`
	Status      MatchStatus `json:"status"`
	RoomID      string      `json:"voice_channel_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CloseDueAt  *time.Time  `json:"close_due_at,omitempty"`
	ClosedAt    *time.Time  `json:"closed_at,omitempty"`
}

// MatchPatch is a partial update of a match record; nil fields are left alone
type MatchPatch struct {
	Status     *MatchStatus
	RoomID     *string
	StartedAt  *time.Time
	CloseDueAt *time.Time
	ClosedAt   *time.Time
}

// StatusPatch builds a patch that only changes the status
func StatusPatch(s MatchStatus) MatchPatch {
	return MatchPatch{Status: &s}
}

// Apply copies the set fields of p onto m
func (p MatchPatch) Apply(m *Match, now time.Time) {
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.RoomID != nil {
		m.RoomID = *p.RoomID
	}
	if p.StartedAt != nil {
		t := *p.StartedAt
		m.StartedAt = &t
	}
	if p.CloseDueAt != nil {
		t := *p.CloseDueAt
		m.CloseDueAt = &t
	}
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		m.ClosedAt = &t
	}
	m.UpdatedAt = now
}

// Room is a provisioned private conversation room
type Room struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	CloseDueAt time.Time     `json:"close_due_at"`
	Retention  time.Duration `json:"retention"`
}
