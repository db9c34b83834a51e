package domain

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionEarned   TransactionType = "Earned"
	TransactionRedeemed TransactionType = "Redeemed"
)

// PointsTransaction is one append-only ledger entry. Reference is set for
// entries produced by external events and is unique per account.
type PointsTransaction struct {
	ID          string          `json:"id"`
	Type        TransactionType `json:"type"`
	Points      int64           `json:"points"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// LoyaltyAccount holds a user's points balance and its ledger.
//
// TotalPoints == OpeningBalance + sum(Earned) - sum(Redeemed) at all times.
// OpeningBalance carries balances that predate the ledger.
type LoyaltyAccount struct {
	ID             string              `json:"id,omitempty"`
	UserID         string              `json:"user_id"`
	OpeningBalance int64               `json:"opening_balance"`
	TotalPoints    int64               `json:"total_points"`
	PointsHistory  []PointsTransaction `json:"points_history"`
	Version        int64               `json:"version"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`

	// number of PointsHistory entries already persisted
	committed int
}

func NewLoyaltyAccount(userID string, now time.Time) *LoyaltyAccount {
	return &LoyaltyAccount{
		UserID:        userID,
		PointsHistory: []PointsTransaction{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Redeem debits points. The account is left untouched on failure.
func (a *LoyaltyAccount) Redeem(points int64, description string, now time.Time) error {
	if points <= 0 {
		return &ValidationError{Field: "points", Reason: "must be greater than 0"}
	}
	if a.TotalPoints < points {
		return &InsufficientPointsError{Requested: points, Balance: a.TotalPoints}
	}
	a.TotalPoints -= points
	a.append(TransactionRedeemed, points, description, "", now)
	return nil
}

// Earn credits points. It reports false without changing anything when an
// entry with the same non-empty reference is already in the ledger.
func (a *LoyaltyAccount) Earn(points int64, description, reference string, now time.Time) (bool, error) {
	if points <= 0 {
		return false, &ValidationError{Field: "points", Reason: "must be greater than 0"}
	}
	if reference != "" && a.HasReference(reference) {
		return false, nil
	}
	if points > math.MaxInt64-a.TotalPoints {
		return false, &ValidationError{Field: "points", Reason: "balance would exceed the supported range"}
	}
	a.TotalPoints += points
	a.append(TransactionEarned, points, description, reference, now)
	return true, nil
}

func (a *LoyaltyAccount) HasReference(reference string) bool {
	for _, tx := range a.PointsHistory {
		if tx.Reference == reference {
			return true
		}
	}
	return false
}

func (a *LoyaltyAccount) append(t TransactionType, points int64, description, reference string, now time.Time) {
	a.PointsHistory = append(a.PointsHistory, PointsTransaction{
		ID:          uuid.NewString(),
		Type:        t,
		Points:      points,
		Description: description,
		Reference:   reference,
		OccurredAt:  now,
	})
	a.UpdatedAt = now
}

// LedgerBalance is OpeningBalance replayed through the ledger.
func (a *LoyaltyAccount) LedgerBalance() int64 {
	balance := a.OpeningBalance
	for _, tx := range a.PointsHistory {
		switch tx.Type {
		case TransactionEarned:
			balance += tx.Points
		case TransactionRedeemed:
			balance -= tx.Points
		}
	}
	return balance
}

// Reconcile verifies the ledger invariant.
func (a *LoyaltyAccount) Reconcile() error {
	if a.TotalPoints < 0 {
		return errors.Newf("negative balance %d for user %s", a.TotalPoints, a.UserID)
	}
	if ledger := a.LedgerBalance(); ledger != a.TotalPoints {
		return errors.Newf("balance %d does not match ledger %d for user %s", a.TotalPoints, ledger, a.UserID)
	}
	return nil
}

// Uncommitted returns the ledger entries appended since the last
// MarkCommitted call.
func (a *LoyaltyAccount) Uncommitted() []PointsTransaction {
	if a.committed >= len(a.PointsHistory) {
		return nil
	}
	return a.PointsHistory[a.committed:]
}

// MarkCommitted records that every current ledger entry is persisted.
// Repositories call it after loading and after saving.
func (a *LoyaltyAccount) MarkCommitted() {
	a.committed = len(a.PointsHistory)
}

func (a *LoyaltyAccount) Clone() *LoyaltyAccount {
	cp := *a
	cp.PointsHistory = make([]PointsTransaction, len(a.PointsHistory))
	copy(cp.PointsHistory, a.PointsHistory)
	return &cp
}
