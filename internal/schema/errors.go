package schema

import (
	"errors"
	"regexp"

	"github.com/lib/pq"
)

var mismatchRe = regexp.MustCompile(`(?i)\b(relation|column|table)\b.*\b(does not exist|not found)\b|no such (table|column)`)

// IsSchemaMismatch сообщает, что запрос упал из-за несовпадения имен таблиц/колонок.
// Ограничения, обрывы соединения и синтаксические ошибки сюда не попадают.
func IsSchemaMismatch(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42P01", "42703", "3F000": // undefined_table, undefined_column, invalid_schema_name
			return true
		}
		return false
	}
	return mismatchRe.MatchString(err.Error())
}
