// Package pagination implements keyset cursors over (timestamp, id) pairs.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// ErrInvalidCursor wraps every cursor decoding failure.
var ErrInvalidCursor = errors.New("invalid cursor")

// Params is the caller's page request.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor points just past the last row of the previous page.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

// Page is one slice of a listing plus the cursor for the next one.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// NormalizeLimit clamps limit into [1, MaxLimit], using DefaultLimit for zero.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// token is the cursor wire form. Sort names the column the cursor was cut
// on so a cursor from one listing is refused by another.
type token struct {
	Sort string    `json:"s"`
	At   time.Time `json:"t"`
	ID   uuid.UUID `json:"i"`
}

// Encode renders c as an opaque cursor for a listing sorted on column.
func Encode(column string, c Cursor) string {
	raw, _ := json.Marshal(token{Sort: column, At: c.At.UTC(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses a cursor issued for column. An empty value yields nil.
func Decode(column, value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var tok token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if tok.Sort != column {
		return nil, fmt.Errorf("%w: issued for a different listing", ErrInvalidCursor)
	}
	if tok.At.IsZero() || tok.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: incomplete position", ErrInvalidCursor)
	}
	return &Cursor{At: tok.At.UTC(), ID: tok.ID}, nil
}

// Keyset runs q newest first on (column, id), resuming after params.Cursor.
// One extra row is fetched to learn whether another page exists.
func Keyset[T any](q *gorm.DB, column string, params Params, key func(T) Cursor) (Page[T], error) {
	cursor, err := Decode(column, params.Cursor)
	if err != nil {
		return Page[T]{}, err
	}
	if cursor != nil {
		q = q.Where("(("+column+" < ?) OR ("+column+" = ? AND id < ?))", cursor.At, cursor.At, cursor.ID)
	}
	limit := NormalizeLimit(params.Limit)
	rows := make([]T, 0, limit+1)
	if err := q.Order(column + " DESC").Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return Page[T]{}, err
	}
	if len(rows) <= limit {
		return Page[T]{Items: rows}, nil
	}
	rows = rows[:limit]
	return Page[T]{Items: rows, NextCursor: Encode(column, key(rows[limit-1]))}, nil
}
