package sqlgen

import (
	"fmt"
	"strings"
)

// SortHint is one configured default-sort entry before column resolution.
// Ascending is absent when the hint gave no direction.
type SortHint struct {
	Column    string
	Ascending *bool
}

// ParseSortHints parses the default sort configuration, e.g.
//
//	users:signup_tstamp desc,id;orders:total
//
// Tables are separated by ';', columns by ','. The direction word is optional.
func ParseSortHints(s string) (map[string][]SortHint, error) {
	hints := make(map[string][]SortHint)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		table, cols, ok := strings.Cut(entry, ":")
		table = strings.TrimSpace(table)
		if !ok || table == "" {
			return nil, fmt.Errorf("invalid sort hint %q: expected table:column", entry)
		}
		for _, item := range strings.Split(cols, ",") {
			fields := strings.Fields(item)
			switch len(fields) {
			case 0:
				continue
			case 1:
				hints[strings.ToLower(table)] = append(hints[strings.ToLower(table)], SortHint{Column: fields[0]})
			case 2:
				var asc bool
				switch strings.ToLower(fields[1]) {
				case "asc":
					asc = true
				case "desc":
					asc = false
				default:
					return nil, fmt.Errorf("invalid sort direction %q for %s.%s", fields[1], table, fields[0])
				}
				hints[strings.ToLower(table)] = append(hints[strings.ToLower(table)], SortHint{Column: fields[0], Ascending: &asc})
			default:
				return nil, fmt.Errorf("invalid sort hint %q for table %s", item, table)
			}
		}
	}
	return hints, nil
}
