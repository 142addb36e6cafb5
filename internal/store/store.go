// Package store holds the persistence contract shared by the postgres and
// sqlite backends.
package store

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"HoneyHubUsers/internal/domain"
)

// Tx is the set of writes a provisioning unit of work may stage. Nothing is
// visible to other readers until the owning WithinTx call commits.
type Tx interface {
	// InsertUser writes the user row and, for external accounts, the login
	// association. u.ID is set on success.
	InsertUser(ctx context.Context, u *domain.User) error
	InsertOutboxMessage(ctx context.Context, msg domain.OutboxMessage) error
}

// TxFunc runs inside a transaction; returning an error rolls it back.
type TxFunc func(ctx context.Context, tx Tx) error

type Migration struct {
	Name string
	SQL  string
}

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// LoadMigrations returns the embedded *.sql files of fsys in name order with
// only their Up section.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		up := strings.TrimSpace(ExtractUp(string(content)))
		if up == "" {
			continue
		}
		out = append(out, Migration{Name: name, SQL: up})
	}
	return out, nil
}

func ExtractUp(content string) string {
	upIdx := strings.Index(content, upMarker)
	if upIdx == -1 {
		return content
	}
	rest := content[upIdx+len(upMarker):]
	if downIdx := strings.Index(rest, downMarker); downIdx != -1 {
		return rest[:downIdx]
	}
	return rest
}
