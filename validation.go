package main

import (
	"fmt"
	"regexp"
	"strings"
)

type forbiddenPattern struct {
	re   *regexp.Regexp
	desc string
}

func keywordPattern(keyword string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^a-zA-Z_])` + keyword + `(?:[^a-zA-Z_]|$)`)
}

// forbiddenKeywords are DML/DDL and session-control keywords that must not
// appear anywhere in a query, even after the SELECT prefix.
var forbiddenKeywords = []forbiddenPattern{
	{keywordPattern("INSERT"), "INSERT"},
	{keywordPattern("UPDATE"), "UPDATE"},
	{keywordPattern("DELETE"), "DELETE"},
	{keywordPattern("DROP"), "DROP"},
	{keywordPattern("CREATE"), "CREATE"},
	{keywordPattern("ALTER"), "ALTER"},
	{keywordPattern("TRUNCATE"), "TRUNCATE"},
	{keywordPattern("MERGE"), "MERGE"},
	{keywordPattern("GRANT"), "GRANT"},
	{keywordPattern("REVOKE"), "REVOKE"},
	{keywordPattern("CALL"), "CALL"},
	{keywordPattern("EXECUTE"), "EXECUTE"},
	{keywordPattern("COPY"), "COPY"},
	{keywordPattern("LISTEN"), "LISTEN"},
	{keywordPattern("NOTIFY"), "NOTIFY"},
	{keywordPattern("PREPARE"), "PREPARE"},
	{keywordPattern("DEALLOCATE"), "DEALLOCATE"},
	{keywordPattern("VACUUM"), "VACUUM"},
	{keywordPattern("REINDEX"), "REINDEX"},
	{keywordPattern("CLUSTER"), "CLUSTER"},
}

// forbiddenFunctions are PostgreSQL functions usable for file access or
// denial of service from inside a SELECT.
var forbiddenFunctions = []forbiddenPattern{
	{regexp.MustCompile(`(?i)\bpg_read_file\s*\(`), "pg_read_file()"},
	{regexp.MustCompile(`(?i)\bpg_read_binary_file\s*\(`), "pg_read_binary_file()"},
	{regexp.MustCompile(`(?i)\bpg_ls_dir\s*\(`), "pg_ls_dir()"},
	{regexp.MustCompile(`(?i)\blo_import\s*\(`), "lo_import()"},
	{regexp.MustCompile(`(?i)\blo_export\s*\(`), "lo_export()"},
	{regexp.MustCompile(`(?i)\bpg_sleep\s*\(`), "pg_sleep()"},
	{regexp.MustCompile(`(?i)\bpg_sleep_for\s*\(`), "pg_sleep_for()"},
	{regexp.MustCompile(`(?i)\bpg_sleep_until\s*\(`), "pg_sleep_until()"},
	{regexp.MustCompile(`(?i)\bpg_advisory_lock\s*\(`), "pg_advisory_lock()"},
	{regexp.MustCompile(`(?i)\bpg_advisory_xact_lock\s*\(`), "pg_advisory_xact_lock()"},
	{regexp.MustCompile(`(?i)\bpg_try_advisory_lock\s*\(`), "pg_try_advisory_lock()"},
}

var setStatementPattern = regexp.MustCompile(`(?i)(?:^|;)\s*SET\b`)

// validateReadOnlyQuery rejects anything that is not a single SELECT
// statement. The check is purely syntactic and runs before any database
// connection is touched; keyword screening operates on a copy with string
// literals and comments stripped so that data containing keywords does not
// trigger a false positive.
func validateReadOnlyQuery(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return &ValidationError{Reason: "empty query"}
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") || !selectBoundary(upper) {
		return &ValidationError{Reason: "only SELECT statements are allowed"}
	}

	cleaned := stripStringsAndComments(trimmed)

	if idx := strings.Index(cleaned, ";"); idx >= 0 {
		if strings.TrimSpace(cleaned[idx+1:]) != "" {
			return &ValidationError{Reason: "multiple statements are not allowed"}
		}
	}

	for _, fk := range forbiddenKeywords {
		if fk.re.MatchString(cleaned) {
			return &ValidationError{Reason: fmt.Sprintf("query contains forbidden keyword: %s", fk.desc)}
		}
	}
	for _, ff := range forbiddenFunctions {
		if ff.re.MatchString(cleaned) {
			return &ValidationError{Reason: fmt.Sprintf("query contains forbidden function: %s", ff.desc)}
		}
	}
	if setStatementPattern.MatchString(cleaned) {
		return &ValidationError{Reason: "SET statements are not allowed"}
	}

	return nil
}

// selectBoundary reports whether the character after the SELECT prefix (if
// any) ends the word, so "SELECTED ..." is not mistaken for a SELECT.
func selectBoundary(upper string) bool {
	rest := upper[len("SELECT"):]
	if rest == "" {
		return true
	}
	c := rest[0]
	return !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') && c != '_' && c != '$'
}

// stripStringsAndComments blanks out string literals and comments so that
// keyword detection cannot trip on data. PostgreSQL rules: -- and /* */
// comments, single-quoted strings with '' escaping, $tag$ dollar quoting,
// double-quoted identifiers preserved, no # comments, no backtick quoting.
func stripStringsAndComments(sql string) string {
	var result strings.Builder
	i := 0
	n := len(sql)

	for i < n {
		// Single-line comment
		if i+1 < n && sql[i] == '-' && sql[i+1] == '-' {
			for i < n && sql[i] != '\n' {
				i++
			}
			result.WriteByte(' ')
			continue
		}

		// Multi-line comment
		if i+1 < n && sql[i] == '/' && sql[i+1] == '*' {
			i += 2
			for i+1 < n && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			i += 2
			result.WriteByte(' ')
			continue
		}

		// Dollar-quoted string $tag$...$tag$ or $$...$$
		if sql[i] == '$' {
			tagEnd := strings.Index(sql[i+1:], "$")
			if tagEnd >= 0 {
				tag := sql[i : i+tagEnd+2]
				closeIdx := strings.Index(sql[i+len(tag):], tag)
				if closeIdx >= 0 {
					i += len(tag) + closeIdx + len(tag)
					result.WriteString("''")
					continue
				}
			}
		}

		// Single-quoted string, '' escapes a quote
		if sql[i] == '\'' {
			i++
			for i < n {
				if sql[i] == '\'' {
					if i+1 < n && sql[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			result.WriteString("''")
			continue
		}

		// Double-quoted identifier, preserved as-is
		if sql[i] == '"' {
			result.WriteByte('"')
			i++
			for i < n {
				if sql[i] == '"' {
					if i+1 < n && sql[i+1] == '"' {
						result.WriteString(`""`)
						i += 2
						continue
					}
					result.WriteByte('"')
					i++
					break
				}
				result.WriteByte(sql[i])
				i++
			}
			continue
		}

		result.WriteByte(sql[i])
		i++
	}

	return result.String()
}
