// Package sqlguard validates and executes LLM-proposed reads against skill
// data, and provides the narrow write helpers used for deferred data writes.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kilohq/kilo/internal/kiloerr"
)

// forbiddenKeyword matches mutating or multi-purpose keywords anywhere in
// the query, whole-word, case-insensitive.
var forbiddenKeyword = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|GRANT|REVOKE|INTO|SET)\b`)

// tableRef captures identifiers following FROM or JOIN, including an
// optional schema qualifier.
var tableRef = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+((?:"[^"]+"|[a-zA-Z_][a-zA-Z0-9_]*)(?:\.(?:"[^"]+"|[a-zA-Z_][a-zA-Z0-9_]*))?)`)

var limitClause = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)

// MaxRows caps the result set of any guarded read.
const MaxRows = 1000

// ValidateQuery applies the sandbox rules in order and returns the query to
// execute (with LIMIT appended when absent). allowedTables is the skill's
// readable set; schemaName is the bot's own schema, references qualified to
// it are always permitted.
func ValidateQuery(query, schemaName string, allowedTables []string) (string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", violation("empty query")
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return "", violation("query must begin with SELECT or WITH")
	}

	if m := forbiddenKeyword.FindString(trimmed); m != "" {
		return "", violation(fmt.Sprintf("forbidden keyword %q", strings.ToUpper(m)))
	}

	// A terminator followed by any further token means a second statement.
	if idx := strings.Index(trimmed, ";"); idx >= 0 {
		if strings.TrimSpace(trimmed[idx+1:]) != "" {
			return "", violation("multiple statements are not allowed")
		}
		trimmed = strings.TrimSpace(trimmed[:idx])
	}

	allowed := make(map[string]bool, len(allowedTables))
	for _, t := range allowedTables {
		allowed[strings.ToLower(t)] = true
	}
	cteNames := collectCTENames(trimmed)

	for _, match := range tableRef.FindAllStringSubmatch(trimmed, -1) {
		ref := strings.ToLower(strings.ReplaceAll(match[1], `"`, ""))
		if schema, table, ok := strings.Cut(ref, "."); ok {
			if schema != strings.ToLower(schemaName) {
				return "", violation(fmt.Sprintf("table %q is outside the bot schema", schema+"."+table))
			}
			continue
		}
		if cteNames[ref] {
			continue
		}
		if !allowed[ref] {
			return "", violation(fmt.Sprintf("table %q is not readable by this skill", ref))
		}
	}

	if !limitClause.MatchString(trimmed) {
		trimmed = fmt.Sprintf("%s LIMIT %d", trimmed, MaxRows)
	}
	return trimmed, nil
}

// collectCTENames extracts names bound by a WITH clause so they are not
// treated as table references.
var cteName = regexp.MustCompile(`(?i)(?:\bWITH\s+|,\s*)("?[a-zA-Z_][a-zA-Z0-9_]*"?)\s+AS\s*\(`)

func collectCTENames(query string) map[string]bool {
	names := make(map[string]bool)
	for _, m := range cteName.FindAllStringSubmatch(query, -1) {
		names[strings.ToLower(strings.ReplaceAll(m[1], `"`, ""))] = true
	}
	return names
}

func violation(msg string) error {
	return kiloerr.New(kiloerr.CodeNotAuthorized, "query rejected: "+msg)
}
