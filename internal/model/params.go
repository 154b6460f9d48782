package model

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ExpandParameterSets implements the parameter-set expansion rule in
// spec.md §3: an explicit list of parameter sets is taken verbatim (and
// expansion of a list is idempotent); a mapping of top-level key to a list
// of argument sets is expanded to the Cartesian product across keys, with
// each argument's keys prefixed by its top-level key (mirroring
// query_exporter/schema.py's `_validate_query_paramters`).
func ExpandParameterSets(list []map[string]interface{}, mapping map[string][]map[string]interface{}) ([]map[string]interface{}, error) {
	if list != nil && mapping != nil {
		return nil, fmt.Errorf("parameters must be given as either a list or a mapping, not both")
	}
	if list != nil {
		// Verbatim, and idempotent: re-expanding a list yields itself.
		return list, nil
	}
	if mapping == nil {
		return nil, nil
	}

	// Flatten each top-level key's argument sets, prefixing keys with
	// "<topkey>__".
	flattened := make([][]map[string]interface{}, 0, len(mapping))
	for topKey, argSets := range mapping {
		sets := make([]map[string]interface{}, 0, len(argSets))
		for _, argSet := range argSets {
			prefixed := make(map[string]interface{}, len(argSet))
			for k, v := range argSet {
				prefixed[fmt.Sprintf("%s__%s", topKey, k)] = v
			}
			sets = append(sets, prefixed)
		}
		flattened = append(flattened, sets)
	}

	// Cartesian product across the flattened sets, merging each combination
	// into a single parameter map.
	combos := [][]map[string]interface{}{{}}
	for _, sets := range flattened {
		next := make([][]map[string]interface{}, 0, len(combos)*len(sets))
		for _, combo := range combos {
			for _, set := range sets {
				nc := make([]map[string]interface{}, len(combo), len(combo)+1)
				copy(nc, combo)
				nc = append(nc, set)
				next = append(next, nc)
			}
		}
		combos = next
	}

	result := make([]map[string]interface{}, 0, len(combos))
	for _, combo := range combos {
		merged := make(map[string]interface{})
		for _, set := range combo {
			for k, v := range set {
				merged[k] = v
			}
		}
		result = append(result, merged)
	}
	return result, nil
}

// sqlParamPattern matches a named bindvar (":name", the form sqlx's
// NamedQueryContext expects). "::" is handled separately so a Postgres
// type cast like value::text isn't mistaken for a placeholder named text.
var sqlParamPattern = regexp.MustCompile(`:([a-zA-Z_][a-zA-Z0-9_]*)`)

// ExtractSQLParams returns the set of named bindvars referenced in sql.
func ExtractSQLParams(sql string) map[string]bool {
	masked := strings.ReplaceAll(sql, "::", "\x00\x00")
	names := make(map[string]bool)
	for _, m := range sqlParamPattern.FindAllStringSubmatch(masked, -1) {
		names[m[1]] = true
	}
	return names
}

// ValidateParameterKeys enforces spec.md §3's Query invariant: "parameter
// placeholders in SQL must exactly match keys of every parameter set".
// A query with no parameter sets has nothing to validate against.
func ValidateParameterKeys(sql string, paramSets []map[string]interface{}) error {
	placeholders := ExtractSQLParams(sql)
	for i, set := range paramSets {
		keys := make(map[string]bool, len(set))
		for k := range set {
			keys[k] = true
		}
		if !sameKeySet(placeholders, keys) {
			return fmt.Errorf(
				"parameter set %d: keys %v do not match SQL placeholders %v",
				i, sortedSetKeys(keys), sortedSetKeys(placeholders),
			)
		}
	}
	return nil
}

func sameKeySet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func sortedSetKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
