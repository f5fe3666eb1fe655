package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
)

// Fingerprint computes the deterministic cache key for a schema shape
// plus regulation and scope. The hash is taken over sorted
// (table, column, type) tuples so logically identical schemas collide to
// the same key regardless of map iteration order.
func Fingerprint(tables models.SchemaSet, regulations []models.Regulation, scope models.Scope) string {
	lines := make([]string, 0, tables.FieldCount())
	for tableName, columns := range tables {
		for _, col := range columns {
			lines = append(lines, tableName+"\x00"+col.ColumnName+"\x00"+strings.ToLower(col.DataType))
		}
	}
	sort.Strings(lines)

	regs := make([]string, 0, len(regulations))
	for _, r := range regulations {
		regs = append(regs, string(r))
	}
	sort.Strings(regs)

	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	h.Write([]byte("regs:" + strings.Join(regs, ",")))
	h.Write([]byte("\ncompany:" + scope.CompanyID))
	h.Write([]byte("\nregion:" + scope.Region))

	return hex.EncodeToString(h.Sum(nil))
}
