package models

import (
	"fmt"
	"time"
)

// Account is a provider account linked through OAuth.
type Account struct {
	id           string
	provider     Provider
	externalID   string
	username     string
	accessToken  string
	refreshToken string
	expiry       time.Time
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time
}

// NewAccount creates an unsaved [Account].
func NewAccount(provider Provider, externalID, username string) *Account {
	now := time.Now()
	return &Account{
		provider:   provider,
		externalID: externalID,
		username:   username,
		createdAt:  now,
		updatedAt:  now,
	}
}

func (a *Account) ID() string            { return a.id }
func (a *Account) Provider() Provider    { return a.provider }
func (a *Account) ExternalID() string    { return a.externalID }
func (a *Account) Username() string      { return a.username }
func (a *Account) AccessToken() string   { return a.accessToken }
func (a *Account) RefreshToken() string  { return a.refreshToken }
func (a *Account) Expiry() time.Time     { return a.expiry }
func (a *Account) CreatedAt() time.Time  { return a.createdAt }
func (a *Account) UpdatedAt() time.Time  { return a.updatedAt }
func (a *Account) DeletedAt() *time.Time { return a.deletedAt }

func (a *Account) SetID(id string)                 { a.id = id }
func (a *Account) SetUsername(username string)     { a.username = username }
func (a *Account) SetCreatedAt(t time.Time)        { a.createdAt = t }
func (a *Account) SetUpdatedAt(t time.Time)        { a.updatedAt = t }
func (a *Account) SetDeletedAt(t *time.Time)       { a.deletedAt = t }
func (a *Account) SetExternalID(externalID string) { a.externalID = externalID }

// SetTokens stores OAuth credentials. An empty refresh token keeps the previous one,
// since providers omit it on refresh.
func (a *Account) SetTokens(access, refresh string, expiry time.Time) {
	a.accessToken = access
	if refresh != "" {
		a.refreshToken = refresh
	}
	a.expiry = expiry
}

// Credentials returns the token map accepted by a service's Authenticate method.
func (a *Account) Credentials() map[string]string {
	creds := map[string]string{
		"access_token":  a.accessToken,
		"refresh_token": a.refreshToken,
	}
	if !a.expiry.IsZero() {
		creds["expiry"] = a.expiry.Format(time.RFC3339)
	}
	return creds
}

func (a *Account) Validate() error {
	if a.provider != Spotify && a.provider != Deezer {
		return fmt.Errorf("invalid provider %q", a.provider)
	}
	if a.externalID == "" {
		return fmt.Errorf("external id is required")
	}
	return nil
}

// TransferStatus is the lifecycle state of a [Transfer].
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferCompleted TransferStatus = "completed"
	TransferFailed    TransferStatus = "failed"
)

// Transfer records a single transfer of tracks between providers.
type Transfer struct {
	id            string
	sequence      int
	source        Provider
	dest          Provider
	sourceID      string
	destID        string
	name          string
	selectedCount int
	matchedCount  int
	failedCount   int
	status        TransferStatus
	message       string
	createdAt     time.Time
	updatedAt     time.Time
}

// NewTransfer creates a pending [Transfer].
func NewTransfer(source, dest Provider, sourceID, name string, selected int) *Transfer {
	now := time.Now()
	return &Transfer{
		source:        source,
		dest:          dest,
		sourceID:      sourceID,
		name:          name,
		selectedCount: selected,
		status:        TransferPending,
		createdAt:     now,
		updatedAt:     now,
	}
}

func (t *Transfer) ID() string             { return t.id }
func (t *Transfer) Sequence() int          { return t.sequence }
func (t *Transfer) Source() Provider       { return t.source }
func (t *Transfer) Dest() Provider         { return t.dest }
func (t *Transfer) SourceID() string       { return t.sourceID }
func (t *Transfer) DestID() string         { return t.destID }
func (t *Transfer) Name() string           { return t.name }
func (t *Transfer) SelectedCount() int     { return t.selectedCount }
func (t *Transfer) MatchedCount() int      { return t.matchedCount }
func (t *Transfer) FailedCount() int       { return t.failedCount }
func (t *Transfer) Status() TransferStatus { return t.status }
func (t *Transfer) Message() string        { return t.message }
func (t *Transfer) CreatedAt() time.Time   { return t.createdAt }
func (t *Transfer) UpdatedAt() time.Time   { return t.updatedAt }

func (t *Transfer) SetID(id string)           { t.id = id }
func (t *Transfer) SetSequence(seq int)       { t.sequence = seq }
func (t *Transfer) SetCreatedAt(ts time.Time) { t.createdAt = ts }
func (t *Transfer) SetUpdatedAt(ts time.Time) { t.updatedAt = ts }

// Complete marks the transfer as finished with the created destination playlist.
func (t *Transfer) Complete(destID string, matched, failed int) {
	t.destID = destID
	t.matchedCount = matched
	t.failedCount = failed
	t.status = TransferCompleted
	t.message = ""
}

// Fail marks the transfer as failed.
func (t *Transfer) Fail(matched, failed int, err error) {
	t.matchedCount = matched
	t.failedCount = failed
	t.status = TransferFailed
	if err != nil {
		t.message = err.Error()
	}
}

// Restore sets every stored field, used when scanning rows.
func (t *Transfer) Restore(destID string, matched, failed int, status TransferStatus, message string) {
	t.destID = destID
	t.matchedCount = matched
	t.failedCount = failed
	t.status = status
	t.message = message
}

func (t *Transfer) Validate() error {
	if t.source == "" || t.dest == "" {
		return fmt.Errorf("source and destination providers are required")
	}
	if t.source == t.dest {
		return fmt.Errorf("source and destination must differ")
	}
	if t.sourceID == "" {
		return fmt.Errorf("source playlist id is required")
	}
	switch t.status {
	case TransferPending, TransferCompleted, TransferFailed:
	default:
		return fmt.Errorf("invalid status %q", t.status)
	}
	return nil
}
