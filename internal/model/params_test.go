package model

import "testing"

func TestExpandParameterSetsListIsVerbatim(t *testing.T) {
	list := []map[string]interface{}{{"a": 1}, {"a": 2}}
	got, err := ExpandParameterSets(list, nil)
	if err != nil {
		t.Fatalf("ExpandParameterSets: %v", err)
	}
	if len(got) != 2 || got[0]["a"] != 1 || got[1]["a"] != 2 {
		t.Fatalf("expected the list passed through unchanged, got %+v", got)
	}
}

func TestExpandParameterSetsNoneGivenIsNil(t *testing.T) {
	got, err := ExpandParameterSets(nil, nil)
	if err != nil {
		t.Fatalf("ExpandParameterSets: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestExpandParameterSetsRejectsBothFormsAtOnce(t *testing.T) {
	_, err := ExpandParameterSets(
		[]map[string]interface{}{{"a": 1}},
		map[string][]map[string]interface{}{"k": {{"b": 1}}},
	)
	if err == nil {
		t.Fatal("expected an error when both list and mapping forms are given")
	}
}

func TestExpandParameterSetsMappingCartesianProduct(t *testing.T) {
	mapping := map[string][]map[string]interface{}{
		"region": {{"name": "east"}, {"name": "west"}},
		"tier":   {{"name": "gold"}},
	}
	got, err := ExpandParameterSets(nil, mapping)
	if err != nil {
		t.Fatalf("ExpandParameterSets: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 combinations (2 regions x 1 tier), got %d: %+v", len(got), got)
	}
	for _, combo := range got {
		if _, ok := combo["tier__name"]; !ok {
			t.Errorf("expected every combination to carry a prefixed tier__name key, got %+v", combo)
		}
		if _, ok := combo["region__name"]; !ok {
			t.Errorf("expected every combination to carry a prefixed region__name key, got %+v", combo)
		}
	}
}

func TestExtractSQLParamsIgnoresTypeCasts(t *testing.T) {
	got := ExtractSQLParams("SELECT :count::text AS c, :name AS n")
	if len(got) != 2 || !got["count"] || !got["name"] {
		t.Fatalf("expected {count, name}, got %+v", got)
	}
}

func TestValidateParameterKeysAcceptsExactMatch(t *testing.T) {
	err := ValidateParameterKeys(
		"SELECT :a, :b FROM t",
		[]map[string]interface{}{{"a": 1, "b": 2}},
	)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateParameterKeysRejectsMismatch(t *testing.T) {
	err := ValidateParameterKeys(
		"SELECT :a FROM t",
		[]map[string]interface{}{{"a": 1, "extra": 2}},
	)
	if err == nil {
		t.Fatal("expected an error when a parameter set has a key the SQL doesn't reference")
	}

	err = ValidateParameterKeys(
		"SELECT :a, :b FROM t",
		[]map[string]interface{}{{"a": 1}},
	)
	if err == nil {
		t.Fatal("expected an error when a parameter set is missing a key the SQL references")
	}
}

func TestValidateParameterKeysSkipsWhenNoParameterSets(t *testing.T) {
	if err := ValidateParameterKeys("SELECT :a FROM t", nil); err != nil {
		t.Fatalf("expected no error with zero parameter sets, got %v", err)
	}
}
