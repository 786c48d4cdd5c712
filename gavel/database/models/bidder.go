package models

import (
	"time"

	"github.com/uptrace/bun"
)

type KYCStatus string

const (
	KYCStatusNone     KYCStatus = "none"
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusApproved KYCStatus = "approved"
	KYCStatusRejected KYCStatus = "rejected"
)

// Bidder mirrors the identity asserted by the external auth
// collaborator. The engine only consults the KYC status and the paddle
// number; it never verifies identity itself.
type Bidder struct {
	bun.BaseModel `bun:"table:bidders,alias:bd"`

	ID          string `bun:"id,pk"`
	DisplayName string `bun:"display_name"`
	// Paddle is the pseudonym shown to other bidders in broadcasts.
	Paddle    string    `bun:"paddle,notnull"`
	KYCStatus KYCStatus `bun:"kyc_status,notnull,default:'none'"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Verified reports whether the bidder may place bids.
func (b *Bidder) Verified() bool {
	return b.KYCStatus == KYCStatusApproved
}
