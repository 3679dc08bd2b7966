package provider

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	json "github.com/goccy/go-json"
)

// ReadJSONObject reads a file holding a JSON object. A missing or blank file
// yields an empty object.
func ReadJSONObject(path string) (map[string]json.RawMessage, error) {
	obj, _, err := readJSONObjectOrdered(path)
	return obj, err
}

// readJSONObjectOrdered is ReadJSONObject that also returns the top-level
// keys in file order.
func readJSONObjectOrdered(path string) (map[string]json.RawMessage, []string, error) {
	// #nosec G304 - path is a provider config file chosen by agentsync
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]json.RawMessage{}, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	obj := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(data)) == 0 {
		return obj, nil, nil
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	order, err := objectKeys(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return obj, order, nil
}

// objectKeys lists the top-level keys of a JSON object in document order.
func objectKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("not a JSON object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ReadJSONKey decodes the top-level key of the JSON object at path into v.
// It reports false when the file or key is absent.
func ReadJSONKey(path, key string, v any) (bool, error) {
	obj, err := ReadJSONObject(path)
	if err != nil {
		return false, err
	}
	raw, ok := obj[key]
	if !ok || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("parse %q in %s: %w", key, path, err)
	}
	return true, nil
}

// UpdateJSONKey sets one top-level key of the JSON object at path, leaving
// every sibling key in place and in its original order. A new key goes last.
// A nil value removes the key. The file is created when missing and its mode
// is preserved otherwise.
func UpdateJSONKey(path, key string, value any) error {
	obj, order, err := readJSONObjectOrdered(path)
	if err != nil {
		return err
	}

	if value == nil {
		delete(obj, key)
	} else {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %q: %w", key, err)
		}
		if _, ok := obj[key]; !ok {
			order = append(order, key)
		}
		obj[key] = raw
	}

	data, err := encodeOrdered(obj, order)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writePreservingMode(path, append(data, '\n'))
}

// encodeOrdered writes obj as an indented object, keys in order first and
// any remaining keys sorted after them.
func encodeOrdered(obj map[string]json.RawMessage, order []string) ([]byte, error) {
	seen := make(map[string]bool, len(obj))
	keys := make([]string, 0, len(obj))
	for _, k := range order {
		if _, ok := obj[k]; ok && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range obj {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(obj[k])
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// MergeJSONEntry encodes entry over existing. Keys listed in owned belong to
// entry: they are dropped from existing and rewritten from entry when set.
// Every other key of existing is kept as is.
func MergeJSONEntry(existing json.RawMessage, entry any, owned []string) (json.RawMessage, error) {
	merged := map[string]json.RawMessage{}
	var order []string
	if len(bytes.TrimSpace(existing)) > 0 && string(existing) != "null" {
		if err := json.Unmarshal(existing, &merged); err != nil {
			return nil, err
		}
		keys, err := objectKeys(existing)
		if err != nil {
			return nil, err
		}
		order = keys
	}
	for _, k := range owned {
		delete(merged, k)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}

	var buf bytes.Buffer
	ordered, err := encodeOrdered(merged, order)
	if err != nil {
		return nil, err
	}
	if err := json.Compact(&buf, ordered); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}

// writePreservingMode writes data to path, creating parent directories and
// keeping an existing file's permissions.
func writePreservingMode(path string, data []byte) error {
	mode := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, mode)
}
