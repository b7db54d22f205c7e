package biglist

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
)

func TestFileEntryJSON(t *testing.T) {
	entry := FileEntry{Name: "20240101000000.000001_00ff_3.json", Count: 3, Cum: 9}
	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `["20240101000000.000001_00ff_3.json",3,9]`
	if string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}
	var got FileEntry
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got != entry {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, entry)
	}

	var malformed FileEntry
	if err := json.Unmarshal([]byte(`["a",2]`), &malformed); err == nil {
		t.Fatal("expected error for malformed entry")
	}
}

func TestInfoWireFormat(t *testing.T) {
	info := &Info{
		StorageFormat:  "json",
		StorageVersion: 1,
		BatchSize:      3,
		DataFilesInfo:  []FileEntry{{Name: "a", Count: 2, Cum: 2}},
	}
	data, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, key := range []string{"storage_format", "storage_version", "batch_size", "data_files_info"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("expected key %q in %s", key, data)
		}
	}
	if string(raw["data_files_info"]) != `[["a",2,2]]` {
		t.Fatalf("unexpected data_files_info: %s", raw["data_files_info"])
	}
}

// faultyStorage fails every existence check, simulating a transient storage
// error.
type faultyStorage struct {
	afs.Service
	err error
}

func (f faultyStorage) Exists(ctx context.Context, URL string, options ...storage.Option) (bool, error) {
	return false, f.err
}

func TestListInterimRecordsPropagatesStorageError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	fs := faultyStorage{Service: afs.New(), err: boom}
	if _, err := listInterimRecords(ctx, fs, "mem://localhost/biglist/interim-error"); !errors.Is(err, boom) {
		t.Fatalf("expected storage error to propagate, got %v", err)
	}
}

func TestMergeEntries(t *testing.T) {
	tests := []struct {
		name      string
		existing  []FileEntry
		additions []FileEntry
		want      []FileEntry
	}{
		{
			name:      "append to empty",
			additions: []FileEntry{{Name: "b", Count: 2}, {Name: "a", Count: 3}},
			want:      []FileEntry{{Name: "a", Count: 3, Cum: 3}, {Name: "b", Count: 2, Cum: 5}},
		},
		{
			name:      "dedup on name and count",
			existing:  []FileEntry{{Name: "a", Count: 3, Cum: 3}},
			additions: []FileEntry{{Name: "a", Count: 3}, {Name: "b", Count: 1}},
			want:      []FileEntry{{Name: "a", Count: 3, Cum: 3}, {Name: "b", Count: 1, Cum: 4}},
		},
		{
			name:     "re-merge is a no-op",
			existing: []FileEntry{{Name: "a", Count: 1, Cum: 1}, {Name: "b", Count: 2, Cum: 3}},
			want:     []FileEntry{{Name: "a", Count: 1, Cum: 1}, {Name: "b", Count: 2, Cum: 3}},
		},
		{
			name:      "interleaved names sort into creation order",
			existing:  []FileEntry{{Name: "20240101_x_2", Count: 2, Cum: 2}, {Name: "20240103_x_1", Count: 1, Cum: 3}},
			additions: []FileEntry{{Name: "20240102_y_4", Count: 4}},
			want: []FileEntry{
				{Name: "20240101_x_2", Count: 2, Cum: 2},
				{Name: "20240102_y_4", Count: 4, Cum: 6},
				{Name: "20240103_x_1", Count: 1, Cum: 7},
			},
		},
	}
	for _, tc := range tests {
		got := mergeEntries(tc.existing, tc.additions)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%v: expected %+v, got %+v", tc.name, tc.want, got)
		}
		again := mergeEntries(got, tc.additions)
		if !reflect.DeepEqual(again, tc.want) {
			t.Fatalf("%v: merge not idempotent: %+v", tc.name, again)
		}
	}
}
