package pgvector

import "fmt"

func schemaSQL(table string, dimension int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s (
	id           UUID PRIMARY KEY,
	source_type  TEXT NOT NULL,
	source_key   TEXT NOT NULL,
	chunk_index  INT NOT NULL,
	fingerprint  TEXT NOT NULL UNIQUE,
	text         TEXT NOT NULL,
	attrs        JSONB NOT NULL DEFAULT '{}',
	metadata     JSONB NOT NULL DEFAULT '{}',
	embedding    vector(%[2]d) NOT NULL,
	ingested_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS %[1]s_source_idx ON %[1]s (source_type, source_key);
CREATE INDEX IF NOT EXISTS %[1]s_attrs_idx ON %[1]s USING gin (attrs);
CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx ON %[1]s USING hnsw (embedding vector_cosine_ops);
`, table, dimension)
}

// knownFingerprintsSQL 批量查询已存在的指纹，写入前据此跳过重复内容
func knownFingerprintsSQL(table string) string {
	return fmt.Sprintf(`SELECT fingerprint FROM %s WHERE fingerprint = ANY($1)`, table)
}

// upsertSQL 指纹相同时 WHERE 不成立，RowsAffected 为 0
func upsertSQL(table string) string {
	return fmt.Sprintf(`
INSERT INTO %[1]s (id, source_type, source_key, chunk_index, fingerprint, text, attrs, metadata, embedding, ingested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	fingerprint = EXCLUDED.fingerprint,
	text        = EXCLUDED.text,
	attrs       = EXCLUDED.attrs,
	metadata    = EXCLUDED.metadata,
	embedding   = EXCLUDED.embedding,
	ingested_at = EXCLUDED.ingested_at
WHERE %[1]s.fingerprint <> EXCLUDED.fingerprint`, table)
}

func findSQL(table string) string {
	return fmt.Sprintf(`
SELECT id, source_type, source_key, chunk_index, fingerprint, text, metadata, ingested_at
FROM %s
WHERE attrs @> $1::jsonb
ORDER BY ingested_at DESC, id ASC
LIMIT $2`, table)
}

func countWhereSQL(table string) string {
	return fmt.Sprintf(`SELECT count(*) FROM %s WHERE attrs @> $1::jsonb`, table)
}

func searchSQL(table string) string {
	return fmt.Sprintf(`
SELECT id, source_type, source_key, chunk_index, fingerprint, text, metadata, ingested_at,
       1 - (embedding <=> $1) AS score
FROM %s
WHERE attrs @> $2::jsonb
ORDER BY embedding <=> $1, ingested_at DESC, id ASC
LIMIT $3`, table)
}
