package database

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/ahfmawlrl/sns-solution/pkg/logging"

	schemasql "github.com/ahfmawlrl/sns-solution/pkg/database/sql"
)

// ApplySchema runs the embedded schema files in name order. Every statement
// is idempotent, so re-running at startup is safe.
func ApplySchema(db *sql.DB, logger logging.Logger) error {
	entries, err := schemasql.Schema.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read embedded schema: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		ddl, err := schemasql.Schema.ReadFile("schema/" + name)
		if err != nil {
			return fmt.Errorf("read schema file %s: %w", name, err)
		}
		if _, err := db.Exec(string(ddl)); err != nil {
			return fmt.Errorf("apply schema %s: %w", name, err)
		}
		logger.WithField("file", name).Debug("Applied schema file")
	}
	return nil
}
