package repositories

import (
	"database/sql"
	"fmt"
)

// checkAffectedRows returns notFoundErr when the statement matched no rows.
func checkAffectedRows(result sql.Result, notFoundErr error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundErr
	}
	return nil
}
