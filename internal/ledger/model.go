package ledger

import "time"

// ActionProofRecord stores one consumed proof. Rows are append-only.
type ActionProofRecord struct {
	ID        string    `gorm:"column:id;primaryKey;size:64;not null"`
	Action    string    `gorm:"column:action;size:64;not null;uniqueIndex:idx_action_proofs_scope,priority:1"`
	Nullifier string    `gorm:"column:nullifier;size:190;not null;uniqueIndex:idx_action_proofs_scope,priority:2"`
	Signal    string    `gorm:"column:signal;size:400;not null;uniqueIndex:idx_action_proofs_scope,priority:3"`
	UserID    string    `gorm:"column:user_id;size:190;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ActionProofRecord) TableName() string {
	return "action_proofs"
}
