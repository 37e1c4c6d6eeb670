package repo

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/hamed0406/servicemonitor/internal/domain"
)

var (
	ErrNotFound       = errors.New("service not found")
	ErrInvalidGroupID = errors.New("invalid group id")
)

// Repository stores the service list of every subscriber group. Records are
// kept in insertion order.
type Repository interface {
	ListGroupIDs(ctx context.Context) ([]string, error)
	// FetchAll returns the group's records. A group that was never written
	// is initialized empty.
	FetchAll(ctx context.Context, group string) ([]domain.Record, error)
	// Add appends without checking for duplicates.
	Add(ctx context.Context, group string, rec domain.Record) error
	// Remove deletes every record whose name matches case-insensitively.
	// Removing a missing name is not an error.
	Remove(ctx context.Context, group, name string) error
	// BulkReplace atomically overwrites the whole set.
	BulkReplace(ctx context.Context, group string, recs []domain.Record) error
	// UpdateOne replaces the record with the same name, or returns ErrNotFound.
	UpdateOne(ctx context.Context, group string, rec domain.Record) error
}

var groupIDPattern = regexp.MustCompile(`^-?[A-Za-z0-9_][A-Za-z0-9_.-]{0,127}$`)

// ValidateGroupID rejects ids that are unsafe as file names or keys.
// Chat style ids such as "-100123" are accepted.
func ValidateGroupID(id string) error {
	if !groupIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidGroupID, id)
	}
	return nil
}

// RemoveByName returns recs without the records named name.
func RemoveByName(recs []domain.Record, name string) []domain.Record {
	out := make([]domain.Record, 0, len(recs))
	for _, r := range recs {
		if !domain.SameName(r.Name, name) {
			out = append(out, r)
		}
	}
	return out
}

// ReplaceByName swaps in rec for the first record with the same name.
func ReplaceByName(recs []domain.Record, rec domain.Record) ([]domain.Record, error) {
	for i := range recs {
		if domain.SameName(recs[i].Name, rec.Name) {
			out := append([]domain.Record(nil), recs...)
			out[i] = rec
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, rec.Name)
}
