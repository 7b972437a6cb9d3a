package mappings

import (
	"time"

	"github.com/google/uuid"
)

// Key names an integration role that resolves to a ledger account.
type Key string

const (
	KeyInventory          Key = "inventory"
	KeyOpeningEquity      Key = "opening_equity"
	KeyCash               Key = "cash"
	KeySales              Key = "sales"
	KeyCOGS               Key = "cogs"
	KeyAccountsReceivable Key = "accounts_receivable"
	KeyAccountsPayable    Key = "accounts_payable"
	KeyFXGainLoss         Key = "fx_gain_loss"
)

// Keys lists every supported mapping key.
var Keys = []Key{
	KeyInventory, KeyOpeningEquity, KeyCash, KeySales,
	KeyCOGS, KeyAccountsReceivable, KeyAccountsPayable, KeyFXGainLoss,
}

// Valid reports whether k is a supported key.
func (k Key) Valid() bool {
	for _, known := range Keys {
		if k == known {
			return true
		}
	}
	return false
}

// AccountMapping links integration keys to ledger accounts for a company.
type AccountMapping struct {
	CompanyID uuid.UUID
	Key       Key
	AccountID uuid.UUID
	UpdatedAt time.Time
}
