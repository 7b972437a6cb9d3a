package journals

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const maxNumberContext = 24

// AccountLookup reads accounts for line validation.
type AccountLookup interface {
	Get(ctx context.Context, companyID, id uuid.UUID) (accounts.Account, error)
}

// LineIntent is a requested debit or credit before validation.
type LineIntent struct {
	AccountID   uuid.UUID
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// Debit is shorthand for a debit intent.
func Debit(accountID uuid.UUID, amount decimal.Decimal, description string) LineIntent {
	return LineIntent{AccountID: accountID, Debit: amount, Description: description}
}

// Credit is shorthand for a credit intent.
func Credit(accountID uuid.UUID, amount decimal.Decimal, description string) LineIntent {
	return LineIntent{AccountID: accountID, Credit: amount, Description: description}
}

// Draft describes the entry a caller wants to post.
type Draft struct {
	CompanyID     uuid.UUID
	Date          time.Time
	Reference     string
	SourceType    SourceType
	SourceID      string
	NumberContext string
	Description   string
	Lines         []LineIntent
}

// Builder turns drafts into validated, balanced entries. It never writes.
type Builder struct {
	accounts AccountLookup
	now      func() time.Time

	mu      sync.Mutex
	entropy io.Reader
}

func NewBuilder(lookup AccountLookup) *Builder {
	return &Builder{
		accounts: lookup,
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

func (b *Builder) WithNow(now func() time.Time) {
	if now != nil {
		b.now = now
	}
}

// Build validates the draft and returns a draft-status entry with totals,
// cached account labels and a fresh entry number.
func (b *Builder) Build(ctx context.Context, d Draft) (JournalEntry, error) {
	if d.CompanyID == uuid.Nil {
		return JournalEntry{}, shared.NewValidationError("company_id", "is required")
	}
	if !d.SourceType.Valid() {
		return JournalEntry{}, shared.NewValidationError("source_type", "unknown source type")
	}
	if strings.TrimSpace(d.SourceID) == "" {
		return JournalEntry{}, shared.NewValidationError("source_id", "is required")
	}
	if d.Date.IsZero() {
		return JournalEntry{}, shared.NewValidationError("date", "is required")
	}
	lines, debits, credits, err := checkLines(d.Lines)
	if err != nil {
		return JournalEntry{}, err
	}

	labels := make(map[uuid.UUID]accounts.Account, len(lines))
	for i := range lines {
		id := lines[i].AccountID
		account, ok := labels[id]
		if !ok {
			account, err = b.lookup(ctx, d.CompanyID, id)
			if err != nil {
				return JournalEntry{}, err
			}
			labels[id] = account
		}
		lines[i].AccountCode = account.Code
		lines[i].AccountName = account.Name
	}

	number, err := b.number(d.SourceType, d.NumberContext)
	if err != nil {
		return JournalEntry{}, err
	}
	return JournalEntry{
		ID:           uuid.New(),
		CompanyID:    d.CompanyID,
		Number:       number,
		Date:         d.Date,
		Reference:    d.Reference,
		SourceType:   d.SourceType,
		SourceID:     d.SourceID,
		Description:  d.Description,
		Status:       StatusDraft,
		Lines:        lines,
		TotalDebits:  debits,
		TotalCredits: credits,
		CreatedAt:    b.now().UTC(),
	}, nil
}

func (b *Builder) lookup(ctx context.Context, companyID, id uuid.UUID) (accounts.Account, error) {
	account, err := b.accounts.Get(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return accounts.Account{}, &AccountNotFoundError{AccountID: id}
		}
		return accounts.Account{}, fmt.Errorf("journals: lookup account: %w", err)
	}
	if account.CompanyID != companyID {
		return accounts.Account{}, &AccountNotFoundError{AccountID: id}
	}
	if !account.IsActive {
		return accounts.Account{}, &InactiveAccountError{AccountID: id, Code: account.Code}
	}
	return account, nil
}

func (b *Builder) number(source SourceType, label string) (string, error) {
	b.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(b.now()), b.entropy)
	b.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("journals: entry number: %w", err)
	}
	parts := []string{source.NumberPrefix()}
	if seg := sanitizeContext(label); seg != "" {
		parts = append(parts, seg)
	}
	parts = append(parts, id.String())
	return strings.Join(parts, "-"), nil
}

func sanitizeContext(raw string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			if sb.Len() == maxNumberContext {
				break
			}
		}
	}
	return sb.String()
}

// AmountScale is the number of decimal places stored for line amounts and balances.
const AmountScale = 2

func checkLines(intents []LineIntent) ([]LineItem, decimal.Decimal, decimal.Decimal, error) {
	if len(intents) < 2 {
		return nil, decimal.Zero, decimal.Zero, ErrTooFewLines
	}
	debits, credits := decimal.Zero, decimal.Zero
	lines := make([]LineItem, 0, len(intents))
	for i, in := range intents {
		if err := checkSides(i, in.AccountID, in.Debit, in.Credit); err != nil {
			return nil, decimal.Zero, decimal.Zero, err
		}
		debits = debits.Add(in.Debit)
		credits = credits.Add(in.Credit)
		lines = append(lines, LineItem{
			AccountID:   in.AccountID,
			Description: in.Description,
			Debit:       in.Debit,
			Credit:      in.Credit,
		})
	}
	if !debits.Equal(credits) {
		return nil, decimal.Zero, decimal.Zero, &UnbalancedEntryError{Debits: debits, Credits: credits}
	}
	return lines, debits, credits, nil
}

func checkSides(idx int, accountID uuid.UUID, debit, credit decimal.Decimal) error {
	switch {
	case accountID == uuid.Nil:
		return &LineError{Index: idx, Reason: "account is required"}
	case debit.IsNegative() || credit.IsNegative():
		return &LineError{Index: idx, Reason: "amounts must not be negative"}
	case debit.IsPositive() && credit.IsPositive():
		return &LineError{Index: idx, Reason: "line cannot carry both debit and credit"}
	case debit.IsZero() && credit.IsZero():
		return &LineError{Index: idx, Reason: "line needs a debit or a credit"}
	case !debit.Equal(debit.Round(AmountScale)) || !credit.Equal(credit.Round(AmountScale)):
		return &LineError{Index: idx, Reason: "amounts are limited to two decimal places"}
	}
	return nil
}

// CheckInvariants re-validates a built entry: line shape, totals and balance.
func CheckInvariants(e JournalEntry) error {
	if len(e.Lines) < 2 {
		return ErrTooFewLines
	}
	debits, credits := decimal.Zero, decimal.Zero
	for i, line := range e.Lines {
		if err := checkSides(i, line.AccountID, line.Debit, line.Credit); err != nil {
			return err
		}
		debits = debits.Add(line.Debit)
		credits = credits.Add(line.Credit)
	}
	if !debits.Equal(credits) {
		return &UnbalancedEntryError{Debits: debits, Credits: credits}
	}
	if !e.TotalDebits.Equal(debits) || !e.TotalCredits.Equal(credits) {
		return &UnbalancedEntryError{Debits: e.TotalDebits, Credits: e.TotalCredits}
	}
	return nil
}
