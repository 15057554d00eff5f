package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PurchaseOrder is the built-in approvable type. Supplier, amount and
// description are monitored: edits to them on a pending order are sandboxed
// until reviewers sign off.
type PurchaseOrder struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderCode   string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"order_code"`
	Supplier    string          `gorm:"type:varchar(255);not null" json:"supplier"`
	Description string          `gorm:"type:text" json:"description"`
	Amount      decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"amount"`
	UserID      *uuid.UUID      `gorm:"type:uuid;index" json:"user_id"` // the submitter
	User        *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	ReviewFields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ObjectID implements moderation.Approvable.
func (p *PurchaseOrder) ObjectID() uuid.UUID { return p.ID }

// Review implements moderation.Approvable.
func (p *PurchaseOrder) Review() *ReviewFields { return &p.ReviewFields }

// OwnerID implements moderation.Owned, letting the default set-user strategy
// derive the review submitter from the order itself.
func (p *PurchaseOrder) OwnerID() *uuid.UUID { return p.UserID }
