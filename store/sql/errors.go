package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/goliatone/go-rfp/core"
)

const (
	pqUniqueViolation     = "23505"
	singleAcceptIndexName = "rfp_actions_single_accept"
)

type constraintKind int

const (
	constraintNone constraintKind = iota
	constraintPrimaryKey
	constraintSingleAccept
)

// classifyConstraint separates a reused static id from a second processed Accept.
func classifyConstraint(err error) constraintKind {
	if err == nil {
		return constraintNone
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if string(pqErr.Code) != pqUniqueViolation {
			return constraintNone
		}
		if pqErr.Constraint == singleAcceptIndexName {
			return constraintSingleAccept
		}
		return constraintPrimaryKey
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey:
			return constraintPrimaryKey
		case sqlite3.ErrConstraintUnique:
			if mentionsSingleAccept(sqliteErr.Error()) {
				return constraintSingleAccept
			}
			return constraintPrimaryKey
		}
		return constraintNone
	}
	if !isUniqueViolation(err) {
		return constraintNone
	}
	if mentionsSingleAccept(err.Error()) {
		return constraintSingleAccept
	}
	return constraintPrimaryKey
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

// sqlite names the indexed columns rather than the index.
func mentionsSingleAccept(message string) bool {
	message = strings.ToLower(message)
	return strings.Contains(message, singleAcceptIndexName) ||
		strings.Contains(message, "rfp_actions.rfp_id")
}

func writeError(err error, message string, metadata map[string]any) error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return err
	}
	switch classifyConstraint(err) {
	case constraintSingleAccept:
		return core.TransitionError("sqlstore: request for proposal already has an accepted proposal", metadata)
	case constraintPrimaryKey:
		return core.DuplicateActionError(message+": already exists", metadata)
	}
	return readError(err, message, metadata)
}

func readError(err error, message string, metadata map[string]any) error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return core.StoreUnavailableError(err, message, metadata)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
