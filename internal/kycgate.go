// Package kycgate defines domain types and interfaces for the kycgate
// read gateway. This package has no project imports -- it is the
// dependency root.
package kycgate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// --- Accounts ---

// Address is a lower-case, 0x-prefixed 20-byte account address.
type Address string

// ParseAddress validates a hex account address and normalizes its case.
func ParseAddress(s string) (Address, error) {
	if len(s) != 42 || (s[:2] != "0x" && s[:2] != "0X") {
		return "", fmt.Errorf("%w: address must be 0x followed by 40 hex digits", ErrBadRequest)
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", fmt.Errorf("%w: address is not hex", ErrBadRequest)
	}
	return Address("0x" + strings.ToLower(s[2:])), nil
}

// String returns the address text.
func (a Address) String() string { return string(a) }

// Bytes returns the 20 raw address bytes. The address must have come from
// ParseAddress.
func (a Address) Bytes() []byte {
	b, _ := hex.DecodeString(string(a)[2:])
	return b
}

// --- KYC ---

// KYCStatus is the verification state recorded by the on-chain KYC registry.
type KYCStatus uint8

const (
	KYCNone KYCStatus = iota
	KYCPending
	KYCVerified
	KYCRejected
)

var kycStatusNames = [...]string{"none", "pending", "verified", "rejected"}

func (s KYCStatus) String() string {
	if int(s) < len(kycStatusNames) {
		return kycStatusNames[s]
	}
	return "unknown"
}

// Valid reports whether s is one of the known statuses.
func (s KYCStatus) Valid() bool { return int(s) < len(kycStatusNames) }

// MarshalText encodes the status by name.
func (s KYCStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a status name.
func (s *KYCStatus) UnmarshalText(b []byte) error {
	for i, name := range kycStatusNames {
		if name == string(b) {
			*s = KYCStatus(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown kyc status %q", ErrBadRequest, b)
}

// KYCRecord is the KYC status of one account.
type KYCRecord struct {
	Address Address   `json:"address"`
	Status  KYCStatus `json:"status"`
}

// TrustScore is the score computed by the trust-score contract.
type TrustScore struct {
	Address Address `json:"address"`
	Score   uint64  `json:"score"`
}

// --- Loans ---

// LoanStatus is a loan lifecycle state.
type LoanStatus string

const (
	LoanRequested LoanStatus = "requested"
	LoanApproved  LoanStatus = "approved"
	LoanRejected  LoanStatus = "rejected"
	LoanDisbursed LoanStatus = "disbursed"
	LoanRepaid    LoanStatus = "repaid"
	LoanDefaulted LoanStatus = "defaulted"
)

// loanTransitions lists the legal successor states of each status.
// Terminal states have no entry.
var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanRequested: {LoanApproved, LoanRejected},
	LoanApproved:  {LoanDisbursed, LoanRejected},
	LoanDisbursed: {LoanRepaid, LoanDefaulted},
}

// Valid reports whether s is a known loan status.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanRequested, LoanApproved, LoanRejected, LoanDisbursed, LoanRepaid, LoanDefaulted:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s LoanStatus) Terminal() bool {
	_, ok := loanTransitions[s]
	return s.Valid() && !ok
}

// CanTransition reports whether a loan may move from one status to another.
func CanTransition(from, to LoanStatus) bool {
	for _, next := range loanTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Loan is a loan agreement between a borrower and a lending bank.
type Loan struct {
	ID        string     `json:"id"`
	Borrower  Address    `json:"borrower"`
	Lender    Address    `json:"lender"`
	Amount    string     `json:"amount"` // decimal wei
	Status    LoanStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ValidAmount reports whether s is a positive base-10 integer.
func ValidAmount(s string) bool {
	n, ok := new(big.Int).SetString(s, 10)
	return ok && n.Sign() > 0
}

// LoanFilter selects loans for listing.
type LoanFilter struct {
	Borrower Address
	Status   LoanStatus // empty = any
	Offset   int
	Limit    int
}

// --- Transactions ---

// Transaction is an indexed chain transaction touching an account.
type Transaction struct {
	Hash      string    `json:"hash"`
	Address   Address   `json:"address"` // account the record is indexed under
	From      Address   `json:"from"`
	To        Address   `json:"to"`
	Amount    string    `json:"amount"` // decimal wei
	Kind      string    `json:"kind"`   // e.g. "disbursement", "repayment", "kyc"
	Block     uint64    `json:"block"`
	CreatedAt time.Time `json:"created_at"`
}

// TxFilter selects transactions for listing.
type TxFilter struct {
	Address Address
	Offset  int
	Limit   int
}

// --- Admin identity ---

// APIKey represents an admin API key.
type APIKey struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`          // SHA-256 hex, never exposed
	KeyPrefix  string     `json:"key_prefix"` // first chars for display
	Role       string     `json:"role"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Blocked    bool       `json:"blocked"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Identity is the authenticated caller context attached to request context.
type Identity struct {
	Subject string     `json:"subject"` // key prefix
	KeyID   string     `json:"key_id"`
	Role    string     `json:"role"`
	Perms   Permission `json:"-"`
}

// Permission is a bitmask of admin capabilities.
type Permission uint32

const (
	PermReadCache   Permission = 1 << iota // inspect cache occupancy
	PermClearCache                         // drop cache namespaces
	PermManageLoans                        // create and transition loans
	PermIngest                             // push indexed transactions
	PermManageKeys                         // issue admin API keys
)

// Can reports whether the identity has the given permission.
func (id *Identity) Can(p Permission) bool { return id.Perms&p == p }

// RolePermissions maps role names to their permission bitmasks.
var RolePermissions = map[string]Permission{
	"admin":    PermReadCache | PermClearCache | PermManageLoans | PermIngest | PermManageKeys,
	"operator": PermReadCache | PermClearCache | PermIngest,
	"viewer":   PermReadCache,
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// Identity is filled in later by the authenticate middleware.
type requestMeta struct {
	RequestID string
	Identity  *Identity
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// IdentityFromContext extracts the authenticated identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	if m := metaFromContext(ctx); m != nil {
		return m.Identity
	}
	return nil
}

// ContextWithIdentity stores the identity in the existing requestMeta if
// present, or attaches new metadata otherwise (e.g., in tests).
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.Identity = id
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{Identity: id})
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// --- Shared constants and helpers ---

// APIKeyPrefix is the prefix for all kycgate admin API keys.
const APIKeyPrefix = "kyc_"

// HashKey returns the hex-encoded SHA-256 hash of a raw API key.
func HashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Authenticator validates request credentials and returns the caller identity.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
}
