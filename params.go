package odbc

import "strings"

// ParameterError reports a named parameter that cannot be mapped to a buffer.
type ParameterError struct {
	Name    string
	Message string
}

func (e *ParameterError) Error() string {
	if e.Name != "" {
		return "parameter '" + e.Name + "': " + e.Message
	}
	return "parameter: " + e.Message
}

// NamedParams is a query whose :name, @name and $name parameters were
// rewritten to positional markers.
type NamedParams struct {
	// Query uses ? for every parameter
	Query string

	// Names lists parameter names in order of first appearance
	Names []string

	// Positions maps each name to its 1-based placeholder positions in Query.
	// Positional ? markers already in the query take part in the numbering.
	Positions map[string][]int
}

// ParseNamedParams rewrites the named parameters of query. String literals,
// quoted identifiers and comments are copied untouched, and so is a
// PostgreSQL cast such as x::int. It returns nil when the query has no named
// parameters.
func ParseNamedParams(query string) *NamedParams {
	np := &NamedParams{Positions: make(map[string][]int)}
	var out strings.Builder
	out.Grow(len(query))
	position := 0

	for i := 0; i < len(query); {
		c := query[i]
		if end := skipLiteral(query, i); end > i {
			out.WriteString(query[i:end])
			i = end
			continue
		}
		switch {
		case c == '?':
			position++
		case c == ':' && i+1 < len(query) && query[i+1] == ':':
			out.WriteString("::")
			i += 2
			continue
		case isParamMarker(c) && i+1 < len(query) && isIdentStart(query[i+1]):
			end := i + 2
			for end < len(query) && isIdentChar(query[end]) {
				end++
			}
			name := query[i+1 : end]
			position++
			if _, seen := np.Positions[name]; !seen {
				np.Names = append(np.Names, name)
			}
			np.Positions[name] = append(np.Positions[name], position)
			out.WriteByte('?')
			i = end
			continue
		}
		out.WriteByte(c)
		i++
	}

	if len(np.Names) == 0 {
		return nil
	}
	np.Query = out.String()
	return np
}

// skipLiteral returns the end of the quoted string or comment starting at
// i, or i when none starts there. Unterminated literals run to the end.
func skipLiteral(q string, i int) int {
	switch {
	case q[i] == '\'' || q[i] == '"':
		quote := q[i]
		for j := i + 1; j < len(q); j++ {
			if q[j] != quote {
				continue
			}
			if j+1 < len(q) && q[j+1] == quote {
				j++
				continue
			}
			return j + 1
		}
		return len(q)
	case strings.HasPrefix(q[i:], "--"):
		if n := strings.IndexByte(q[i:], '\n'); n >= 0 {
			return i + n
		}
		return len(q)
	case strings.HasPrefix(q[i:], "/*"):
		if n := strings.Index(q[i+2:], "*/"); n >= 0 {
			return i + 2 + n + 2
		}
		return len(q)
	}
	return i
}

func isParamMarker(c byte) bool {
	return c == ':' || c == '@' || c == '$'
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// PlaceholdersFromNames builds a placeholder mapping for a bulk inserter:
// entry i lists the 1-based placeholder positions of names[i] in np.Query.
// Every named parameter of the query must be listed exactly once.
func PlaceholdersFromNames(np *NamedParams, names ...string) ([][]int, error) {
	if np == nil {
		return nil, &ParameterError{Message: "query has no named parameters"}
	}
	mapping := make([][]int, len(names))
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		positions, ok := np.Positions[name]
		if !ok {
			return nil, &ParameterError{Name: name, Message: "not found in query"}
		}
		if seen[name] {
			return nil, &ParameterError{Name: name, Message: "listed more than once"}
		}
		seen[name] = true
		mapping[i] = positions
	}
	for _, name := range np.Names {
		if !seen[name] {
			return nil, &ParameterError{Name: name, Message: "has no buffer"}
		}
	}
	return mapping, nil
}
