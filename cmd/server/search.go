package main

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns user input into a case-insensitive substring pattern for
// `LOWER(col) LIKE ? ESCAPE '\'`. Wildcards in the input match literally.
func likePattern(query string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
}
