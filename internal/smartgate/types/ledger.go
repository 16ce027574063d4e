package types

import "time"

type TxType string

const (
	TxTopUp        TxType = "top_up"
	TxDebit        TxType = "debit"
	TxGuestPayment TxType = "guest_payment"
	TxPassPayment  TxType = "pass_payment"
	TxRefund       TxType = "refund"
)

func (t TxType) Valid() bool {
	switch t {
	case TxTopUp, TxDebit, TxGuestPayment, TxPassPayment, TxRefund:
		return true
	}
	return false
}

// WalletTransaction is one immutable ledger line. Amount is signed: credits
// are positive, debits negative.
type WalletTransaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Amount      Cents     `json:"amount_cents"`
	Type        TxType    `json:"type"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	Reference   string    `json:"reference,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type WalletActivity struct {
	UserID       string              `json:"user_id"`
	Balance      Cents               `json:"balance_cents"`
	Currency     string              `json:"currency"`
	LastTopUp    *time.Time          `json:"last_top_up,omitempty"`
	Transactions []WalletTransaction `json:"transactions"`
}
