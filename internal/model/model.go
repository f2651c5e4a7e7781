// Package model defines domain entities shared by the gate server and the scanner device.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// TicketStatus is the lifecycle state of a ticket. used and cancelled are
// terminal; transferred re-enters valid bound to a new holder.
type TicketStatus string

const (
	TicketValid       TicketStatus = "valid"
	TicketUsed        TicketStatus = "used"
	TicketCancelled   TicketStatus = "cancelled"
	TicketTransferred TicketStatus = "transferred"
)

// Ticket is the validation view of an issued ticket. Identity fields are
// immutable; only Status changes, and the valid->used transition happens
// exclusively through the check-in ledger.
type Ticket struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	CodeHash   string // hex sha256 of the presentable code
	Status     TicketStatus
	ValidFrom  time.Time
	ValidUntil time.Time
}

// HashCode derives the lookup hash from a human-presentable ticket code.
func HashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// NormalizeCodeHash accepts either a presentable code or an already-derived
// hex hash and returns the lookup hash.
func NormalizeCodeHash(codeOrHash string) string {
	if len(codeOrHash) == 64 {
		if _, err := hex.DecodeString(codeOrHash); err == nil {
			return strings.ToLower(codeOrHash)
		}
	}
	return HashCode(codeOrHash)
}

// Event carries the minimal event data the scanning engine needs.
type Event struct {
	ID          uuid.UUID
	OrganizerID uuid.UUID
	Name        string
}

// Grant is a revocable delegation of scanning rights from an organizer to an
// actor, optionally restricted to an explicit event set.
type Grant struct {
	ActorID     uuid.UUID
	OrganizerID uuid.UUID
	AllEvents   bool
	EventIDs    []uuid.UUID
	CanScan     bool
	Active      bool
	ValidUntil  *time.Time // nil means no expiry
}

// EffectiveAt reports whether the grant is usable at the given instant.
func (g *Grant) EffectiveAt(now time.Time) bool {
	if !g.Active {
		return false
	}
	return g.ValidUntil == nil || g.ValidUntil.After(now)
}

// Covers reports whether the grant's event scope includes the event.
func (g *Grant) Covers(eventID uuid.UUID) bool {
	if g.AllEvents {
		return true
	}
	for _, id := range g.EventIDs {
		if id == eventID {
			return true
		}
	}
	return false
}

// ManifestEntry is the minimal per-ticket data needed to validate offline.
// It deliberately carries no holder PII: a manifest must be safe to cache on
// a lost or shared device.
type ManifestEntry struct {
	CodeHash   string       `json:"code_hash"`
	Status     TicketStatus `json:"status"`
	ValidFrom  time.Time    `json:"valid_from"`
	ValidUntil time.Time    `json:"valid_until"`
}

// Manifest is a signed, expiring, permission-filtered snapshot of ticket
// validity data for one event. Consumers must reject it once ExpiresAt has
// passed regardless of network state.
type Manifest struct {
	EventID   uuid.UUID       `json:"event_id"`
	IssuedAt  time.Time       `json:"issued_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Signature string          `json:"signature"`
	Entries   []ManifestEntry `json:"entries"`
}

// Origin records whether a check-in decision was made with connectivity.
type Origin string

const (
	OriginOnline  Origin = "online"
	OriginOffline Origin = "offline"
)

// SyncState is the device-side lifecycle of a queued check-in.
type SyncState string

const (
	SyncPending  SyncState = "pending"
	SyncSynced   SyncState = "synced"
	SyncRejected SyncState = "rejected"
)

// CheckInOutcome is the ledger's decision for one check-in attempt.
type CheckInOutcome string

const (
	OutcomeAccepted  CheckInOutcome = "accepted"
	OutcomeDuplicate CheckInOutcome = "duplicate"
	OutcomeRejected  CheckInOutcome = "rejected"
)

// CheckInRecord is one attempt as stored in the server ledger. Seq is the
// server-assigned arrival order, the only ordering that counts; ObservedAt is
// the untrusted client clock, kept for reporting.
type CheckInRecord struct {
	ID         uuid.UUID
	Seq        int64
	TicketID   uuid.UUID
	EventID    uuid.UUID
	ActorID    uuid.UUID
	DeviceID   string
	ObservedAt time.Time
	Origin     Origin
	Outcome    CheckInOutcome
	CreatedAt  time.Time
}

// CheckInDecision is the ledger's answer: the outcome for this attempt plus
// the canonical (accepted) record for the ticket, which on a duplicate may
// belong to another device.
type CheckInDecision struct {
	Outcome   CheckInOutcome
	Canonical *CheckInRecord
}

// ValidationStatus is the result of checking one code against validity data.
type ValidationStatus string

const (
	ValidationOK          ValidationStatus = "ok"
	ValidationNotFound    ValidationStatus = "not_found"
	ValidationAlreadyUsed ValidationStatus = "already_used"
	ValidationCancelled   ValidationStatus = "cancelled"
	ValidationTransferred ValidationStatus = "transferred"
	ValidationExpired     ValidationStatus = "expired"
	ValidationNotYetValid ValidationStatus = "not_yet_valid"
)

// StatusOf evaluates a ticket's validation status at the given instant.
func StatusOf(t *Ticket, now time.Time) ValidationStatus {
	switch t.Status {
	case TicketUsed:
		return ValidationAlreadyUsed
	case TicketCancelled:
		return ValidationCancelled
	case TicketTransferred:
		return ValidationTransferred
	}
	if now.Before(t.ValidFrom) {
		return ValidationNotYetValid
	}
	if now.After(t.ValidUntil) {
		return ValidationExpired
	}
	return ValidationOK
}

// ScanContext is the immutable identity of an authenticated scanning request,
// constructed once by the access guard and passed by parameter. It is never
// mutated after construction.
type ScanContext struct {
	ActorID  uuid.UUID
	DeviceID string
}

// Device is a provisioned scanner device credential.
type Device struct {
	ID      string
	ActorID uuid.UUID
	KeyHash []byte
	KeySalt []byte
	Active  bool
}

// EventStats aggregates check-in progress for one event.
type EventStats struct {
	Total     int64 `json:"total"`
	Scanned   int64 `json:"scanned"`
	Remaining int64 `json:"remaining"`
	Online    int64 `json:"online"`
	Offline   int64 `json:"offline"`
}
