package model

import "fmt"

const (
	SessionSingleActiveIndex = "sessions_single_active"
	SessionDisplaySequence   = "session_display_seq"
)

// All returns every persisted model in dependency order.
func All() []interface{} {
	return []interface{}{
		&Project{},
		&Session{},
		&ContextEntry{},
		&Decision{},
		&Task{},
		&NamingEntry{},
	}
}

// PreMigrationSQL must run before AutoMigrate.
func PreMigrationSQL() []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		`CREATE EXTENSION IF NOT EXISTS vector;`,
	}
}

// PostMigrationSQL holds the invariants GORM tags cannot express.
func PostMigrationSQL(dimension int) []string {
	return []string{
		fmt.Sprintf(`CREATE SEQUENCE IF NOT EXISTS %s START 1;`, SessionDisplaySequence),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON sessions ((true)) WHERE status = 'active';`, SessionSingleActiveIndex),
		fmt.Sprintf(`ALTER TABLE context_entries ALTER COLUMN embedding TYPE vector(%d);`, dimension),
		`CREATE INDEX IF NOT EXISTS context_entries_embedding_hnsw ON context_entries USING hnsw (embedding vector_cosine_ops);`,
		`CREATE INDEX IF NOT EXISTS context_entries_session_created ON context_entries (session_id, created_at, id);`,
		`CREATE INDEX IF NOT EXISTS decisions_session_created ON decisions (session_id, created_at, id);`,
		`CREATE INDEX IF NOT EXISTS tasks_session_created ON tasks (session_id, created_at, id);`,
		`CREATE INDEX IF NOT EXISTS tasks_session_completed ON tasks (session_id, completed_at, id) WHERE completed_at IS NOT NULL;`,
	}
}

// ResetEmbeddingColumnSQL re-types the vector column for a dimension
// migration. Existing vectors are dropped; they are regenerated explicitly.
func ResetEmbeddingColumnSQL(dimension int) []string {
	return []string{
		`DROP INDEX IF EXISTS context_entries_embedding_hnsw;`,
		fmt.Sprintf(`ALTER TABLE context_entries ALTER COLUMN embedding TYPE vector(%d) USING NULL;`, dimension),
		`CREATE INDEX IF NOT EXISTS context_entries_embedding_hnsw ON context_entries USING hnsw (embedding vector_cosine_ops);`,
	}
}
