package biglist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

const (
	infoFileName  = "info.json"
	interimFolder = "_interim"
	lockFileName  = "info.json.lock"

	storageVersion = 1
)

// FileEntry describes one data file in the durable index. On the wire it is
// the triple [name, count, cumcount].
type FileEntry struct {
	Name  string
	Count int64
	Cum   int64
}

func (e FileEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Name, e.Count, e.Cum})
}

func (e *FileEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("biglist: malformed data file entry: %s", data)
	}
	if err := json.Unmarshal(raw[0], &e.Name); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[1], &e.Count); err != nil {
		return err
	}
	return json.Unmarshal(raw[2], &e.Cum)
}

// Info is the durable index record of a dataset. The order of DataFilesInfo
// defines the global element order; entries are only ever appended by merge,
// never reordered or mutated.
type Info struct {
	StorageFormat  string      `json:"storage_format"`
	StorageVersion int         `json:"storage_version"`
	BatchSize      int         `json:"batch_size"`
	DataFilesInfo  []FileEntry `json:"data_files_info"`
}

func infoURL(baseURL string) string {
	return url.Join(baseURL, infoFileName)
}

func interimBaseURL(baseURL string) string {
	return url.Join(baseURL, interimFolder)
}

func loadInfo(ctx context.Context, fs afs.Service, baseURL string) (*Info, error) {
	data, err := fs.DownloadWithURL(ctx, infoURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("biglist: read index %v: %w", infoURL(baseURL), err)
	}
	info := &Info{}
	if err := json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("biglist: decode index %v: %w", infoURL(baseURL), err)
	}
	return info, nil
}

func saveInfo(ctx context.Context, fs afs.Service, baseURL string, info *Info) error {
	body, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := fs.Upload(ctx, infoURL(baseURL), file.DefaultFileOsMode, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("biglist: write index %v: %w", infoURL(baseURL), err)
	}
	return nil
}

// mergeEntries folds additions into existing: set union keyed by
// (name, count), sorted by file name, cumulative counts recomputed by prefix
// sum. File names are timestamp-prefixed, so the name order is the creation
// order. Deduplication makes the merge idempotent.
func mergeEntries(existing, additions []FileEntry) []FileEntry {
	type key struct {
		name  string
		count int64
	}
	seen := make(map[key]struct{}, len(existing)+len(additions))
	merged := make([]FileEntry, 0, len(existing)+len(additions))
	for _, source := range [][]FileEntry{existing, additions} {
		for _, entry := range source {
			k := key{name: entry.Name, count: entry.Count}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			merged = append(merged, FileEntry{Name: entry.Name, Count: entry.Count})
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	var cum int64
	for i := range merged {
		cum += merged[i].Count
		merged[i].Cum = cum
	}
	return merged
}

// saveInterim writes an interim record: a JSON array of [name, count] pairs.
func saveInterim(ctx context.Context, fs afs.Service, URL string, entries []FileEntry) error {
	rows := make([][]interface{}, len(entries))
	for i, entry := range entries {
		rows[i] = []interface{}{entry.Name, entry.Count}
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	if err := fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("biglist: write interim record %v: %w", URL, err)
	}
	return nil
}

func loadInterim(ctx context.Context, fs afs.Service, URL string) ([]FileEntry, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("biglist: read interim record %v: %w", URL, err)
	}
	var rows [][]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("biglist: decode interim record %v: %w", URL, err)
	}
	entries := make([]FileEntry, 0, len(rows))
	for _, row := range rows {
		if len(row) != 2 {
			return nil, fmt.Errorf("biglist: malformed interim record %v", URL)
		}
		var entry FileEntry
		if err := json.Unmarshal(row[0], &entry.Name); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(row[1], &entry.Count); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// listInterimRecords returns the URLs of all outstanding interim records,
// sorted for determinism.
func listInterimRecords(ctx context.Context, fs afs.Service, baseURL string) ([]string, error) {
	dirURL := interimBaseURL(baseURL)
	ok, err := fs.Exists(ctx, dirURL)
	if err != nil {
		return nil, fmt.Errorf("biglist: check interim records %v: %w", dirURL, err)
	}
	if !ok {
		return nil, nil
	}
	objects, err := fs.List(ctx, dirURL)
	if err != nil {
		return nil, fmt.Errorf("biglist: list interim records %v: %w", dirURL, err)
	}
	var URLs []string
	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		URLs = append(URLs, object.URL())
	}
	sort.Strings(URLs)
	return URLs, nil
}

func loadInterimEntries(ctx context.Context, fs afs.Service, baseURL string) ([]FileEntry, error) {
	URLs, err := listInterimRecords(ctx, fs, baseURL)
	if err != nil {
		return nil, err
	}
	var all []FileEntry
	for _, recordURL := range URLs {
		entries, err := loadInterim(ctx, fs, recordURL)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}
