package migrations

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

// Statements 拆分后的建表语句（按分号，跳过空语句和纯注释）
func Statements() []string {
	var out []string
	for _, raw := range strings.Split(schema, ";") {
		stmt := stripComments(raw)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

func stripComments(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Apply 在一个事务中执行全部建表语句
func Apply(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	stmts := Statements()
	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute statement %d/%d: %w", i+1, len(stmts), err)
		}
		logger.Debug("Migration statement executed", zap.Int("index", i+1))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	logger.Info("Migration completed", zap.Int("statements", len(stmts)))
	return nil
}
