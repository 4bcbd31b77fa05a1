package accountdao

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
)

const accountSK = "ACCOUNT"

var ErrAccountNotFound = errors.New("account not found")

// TableName returns the accounts table for env
func TableName(env string) string {
	return fmt.Sprintf("%s-coachme-accounts", env)
}

// PK represents the partition key: the provider subject
type PK string

func NewPK(subject string) PK {
	return PK(subject)
}

func (pk PK) String() string {
	return string(pk)
}

// ID represents an account ID in format {subject}:ACCOUNT
// Example: google-oauth2|1234:ACCOUNT
type ID string

func NewID(subject string) ID {
	return ID(fmt.Sprintf("%s:%s", NewPK(subject), accountSK))
}

// ParseID returns the subject named by id
func ParseID(id ID) (subject string, err error) {
	s := string(id)
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || s[idx+1:] != accountSK {
		return "", fmt.Errorf("invalid ID format: %s, expected {subject}:ACCOUNT", s)
	}
	return s[:idx], nil
}

func (id ID) String() string {
	return string(id)
}

// Record represents an account that has signed in
type Record struct {
	PK           PK     `ddb:"hash" dynamodbav:"pk"`  // provider subject
	SK           string `ddb:"range" dynamodbav:"sk"` // Always "ACCOUNT"
	Email        string `dynamodbav:"email"`
	Name         string `dynamodbav:"name,omitempty"`
	Provider     string `dynamodbav:"provider"`        // auth0, google, oidc, dev
	CreatedAt    int64  `dynamodbav:"created_at"`      // Unix timestamp of first sign-in
	LastSignInAt int64  `dynamodbav:"last_sign_in_at"` // Unix timestamp of latest sign-in
}

func (r *Record) GetID() ID {
	return NewID(r.PK.String())
}

// UpsertInput contains fields for recording a sign-in
type UpsertInput struct {
	Subject      string
	Email        string
	Name         string
	Provider     string
	LastSignInAt time.Time
}

// DAO provides data access operations for accounts
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// Upsert records a sign-in, keeping CreatedAt from any existing record
func (d *DAO) Upsert(ctx context.Context, input UpsertInput) error {
	if input.Subject == "" {
		return fmt.Errorf("subject is required")
	}

	lastSignIn := input.LastSignInAt
	if lastSignIn.IsZero() {
		lastSignIn = time.Now()
	}

	existing, err := d.Find(ctx, NewID(input.Subject))
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return fmt.Errorf("failed to check existing account: %w", err)
	}

	createdAt := lastSignIn.Unix()
	if existing != nil && existing.CreatedAt != 0 {
		createdAt = existing.CreatedAt
	}

	record := &Record{
		PK:           NewPK(input.Subject),
		SK:           accountSK,
		Email:        input.Email,
		Name:         input.Name,
		Provider:     input.Provider,
		CreatedAt:    createdAt,
		LastSignInAt: lastSignIn.Unix(),
	}

	if err := d.table.Put(record).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to put account: %w", err)
	}
	return nil
}

// Find retrieves an account by ID
// Returns ErrAccountNotFound if there is no such account
func (d *DAO) Find(ctx context.Context, id ID) (*Record, error) {
	subject, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	var record Record
	err = d.table.Get(NewPK(subject).String()).
		Range(accountSK).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}

	return &record, nil
}

// Delete removes an account
// Returns ErrAccountNotFound if there is no such account
func (d *DAO) Delete(ctx context.Context, id ID) error {
	if _, err := d.Find(ctx, id); err != nil {
		return err
	}

	subject, _ := ParseID(id)
	err := d.table.Delete(NewPK(subject).String()).
		Range(accountSK).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	return nil
}
