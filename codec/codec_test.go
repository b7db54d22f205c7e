package codec

import (
	"errors"
	"reflect"
	"testing"
)

func TestJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		batch []string
	}{
		{name: "empty", batch: []string{}},
		{name: "single", batch: []string{"a"}},
		{name: "many", batch: []string{"a", "b", "c", ""}},
	}
	for _, tc := range tests {
		c := JSON[string]{}
		data, err := c.Encode(tc.batch)
		if err != nil {
			t.Fatalf("%v: encode failed: %v", tc.name, err)
		}
		got, err := c.Decode(data)
		if err != nil {
			t.Fatalf("%v: decode failed: %v", tc.name, err)
		}
		if len(got) != len(tc.batch) {
			t.Fatalf("%v: expected %d elements, got %d", tc.name, len(tc.batch), len(got))
		}
		for i := range got {
			if got[i] != tc.batch[i] {
				t.Fatalf("%v: element %d mismatch: %q vs %q", tc.name, i, got[i], tc.batch[i])
			}
		}
	}
}

func TestMsgpackRoundTrip(t *testing.T) {
	type point struct {
		X int     `msgpack:"x"`
		Y float64 `msgpack:"y"`
	}
	batch := []point{{X: 1, Y: 2.5}, {X: -3, Y: 0}}
	c := Msgpack[point]{}
	data, err := c.Encode(batch)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := c.Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(got, batch) {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, batch)
	}
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry[int]()
	for _, name := range []string{JSONFormat, MsgpackFormat} {
		if _, err := registry.Lookup(name); err != nil {
			t.Fatalf("expected %q to be registered: %v", name, err)
		}
	}
	_, err := registry.Lookup("parquet")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}
