package domain

import (
	"encoding/json"
	"testing"
)

func TestParamValue_JSONRoundTrip(t *testing.T) {
	values := []ParamValue{
		Number(14),
		Number(0.5),
		mustDecimal(t, "0.010"),
		Symbol("trend"),
		StringValue("raw text"),
	}

	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", v, err)
		}

		var got ParamValue
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if !got.Equal(v) {
			t.Errorf("round trip changed %s into %s", v, got)
		}
		if got.Kind() != v.Kind() {
			t.Errorf("round trip changed kind %s into %s", v.Kind(), got.Kind())
		}
	}
}

func TestCombination_JSONKeepsKinds(t *testing.T) {
	c := Combination{
		"period":    Number(14),
		"stop_loss": mustDecimal(t, "0.02"),
		"mode":      Symbol("trend"),
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Combination
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Key() != c.Key() {
		t.Errorf("expected key %s, got %s", c.Key(), got.Key())
	}
}

func mustDecimal(t *testing.T, s string) ParamValue {
	t.Helper()
	v, err := DecimalFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return v
}
