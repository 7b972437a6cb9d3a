package shared

import "fmt"

// PostingLockKey builds the redis key that serialises postings for a company.
func PostingLockKey(companyID string) string {
	return fmt.Sprintf("ledger:company:%s:posting-lock", companyID)
}

// BalanceCacheVersionKey builds the redis key holding a company's balance cache version.
func BalanceCacheVersionKey(companyID string) string {
	return fmt.Sprintf("ledger:company:%s:balances:version", companyID)
}
