package schemagen

import (
	"regexp"
	"strings"
)

// maxIdentifierLen is the Postgres identifier limit.
const maxIdentifierLen = 63

// reservedWords are SQL keywords that cannot stand alone as column names.
var reservedWords = map[string]bool{
	"all": true, "and": true, "any": true, "array": true, "as": true,
	"asc": true, "between": true, "both": true, "case": true, "cast": true,
	"check": true, "collate": true, "column": true, "constraint": true,
	"create": true, "current_date": true, "current_time": true,
	"current_timestamp": true, "current_user": true, "default": true,
	"desc": true, "distinct": true, "do": true, "else": true, "end": true,
	"except": true, "false": true, "for": true, "foreign": true, "from": true,
	"grant": true, "group": true, "having": true, "in": true, "index": true,
	"initially": true, "intersect": true, "into": true, "is": true,
	"join": true, "leading": true, "limit": true, "localtime": true,
	"not": true, "null": true, "offset": true, "on": true, "only": true,
	"or": true, "order": true, "primary": true, "references": true,
	"select": true, "session_user": true, "some": true, "table": true,
	"then": true, "to": true, "trailing": true, "true": true, "union": true,
	"unique": true, "user": true, "using": true, "when": true, "where": true,
	"window": true, "with": true,
}

var (
	nonIdentChars   = regexp.MustCompile(`[^a-z0-9_]+`)
	repeatedUnders  = regexp.MustCompile(`_{2,}`)
	leadingLetter   = regexp.MustCompile(`^[a-z]`)
	tableSuffixes   = regexp.MustCompile(`_(tracker|log|manager|builder|planner)$`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	nonAlnumOrSpace = regexp.MustCompile(`[^a-z0-9\s]+`)
)

// SanitizeIdentifier turns an arbitrary string into a safe SQL identifier:
// lowercase, non-[a-z0-9_] replaced with underscores, runs collapsed, edges
// trimmed. Reserved words and identifiers not starting with a letter get a
// col_ prefix. Result is truncated to 63 characters.
func SanitizeIdentifier(name string) string {
	ident := strings.ToLower(strings.TrimSpace(name))
	ident = nonIdentChars.ReplaceAllString(ident, "_")
	ident = repeatedUnders.ReplaceAllString(ident, "_")
	ident = strings.Trim(ident, "_")

	if ident == "" {
		ident = "col"
	}
	if reservedWords[ident] || !leadingLetter.MatchString(ident) {
		ident = "col_" + ident
	}
	if len(ident) > maxIdentifierLen {
		ident = ident[:maxIdentifierLen]
	}
	return ident
}

// baseTableName derives the pluralized table name for a skill: lowercased,
// punctuation dropped, whitespace collapsed to underscores, common role
// suffixes stripped, and a trailing "s" appended.
func baseTableName(skillName string) string {
	name := strings.ToLower(strings.TrimSpace(skillName))
	name = nonAlnumOrSpace.ReplaceAllString(name, "")
	name = whitespaceRun.ReplaceAllString(strings.TrimSpace(name), "_")
	name = tableSuffixes.ReplaceAllString(name, "")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "skill_data"
	}
	if !strings.HasSuffix(name, "s") {
		name += "s"
	}
	if len(name) > maxIdentifierLen {
		name = name[:maxIdentifierLen]
	}
	return name
}
