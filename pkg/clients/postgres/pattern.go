package postgres

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern returns a LIKE/ILIKE pattern matching values that
// contain term literally. Wildcards in term are escaped with the default
// backslash escape character.
func ContainsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
