package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	UnitStatusPurchased         = "purchased"
	UnitStatusPartiallyRedeemed = "partially_redeemed"
	UnitStatusFullyRedeemed     = "fully_redeemed"
)

// RedeemableUnit is the capacity-limited coupon shared by exactly two partners.
// It is produced by the payment-completion webhook and only ever consumed here.
// RedemptionCount is guarded by the Version column: all mutations go through a
// compare-and-swap update so two devices racing on the last slot cannot both win.
type RedeemableUnit struct {
	ID                string     `db:"id"`
	MaxRedemptions    int        `db:"max_redemptions"`
	RedemptionCount   int        `db:"redemption_count"`
	RedeemedByUserIDs UserIDList `db:"redeemed_by_user_ids"`
	Status            string     `db:"status"`
	SessionsPerWeek   int        `db:"sessions_per_week"`
	TargetWeeks       int        `db:"target_weeks"`
	Version           int64      `db:"version"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// HasRedeemed reports whether userID already appears in the redeemed set.
func (u *RedeemableUnit) HasRedeemed(userID string) bool {
	for _, id := range u.RedeemedByUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// FirstRedeemerID returns the user ID of the first redemption, or "" if none.
func (u *RedeemableUnit) FirstRedeemerID() string {
	if len(u.RedeemedByUserIDs) == 0 {
		return ""
	}
	return u.RedeemedByUserIDs[0]
}

// UserIDList is a JSON-encoded, append-only list of user IDs stored in a TEXT
// column. Order is significant: the first entry is the first redeemer.
type UserIDList []string

func (l UserIDList) Value() (driver.Value, error) {
	if l == nil {
		l = UserIDList{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *UserIDList) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return json.Unmarshal([]byte(v), l)
	case []byte:
		return json.Unmarshal(v, l)
	default:
		return fmt.Errorf("cannot scan %T into UserIDList", src)
	}
}
