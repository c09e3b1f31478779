// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Table is the generic form of a scenario file: offsets mapped to the
// records of the actions and endings at that offset.
type Table map[string][]map[string]any

// Load reads the scenario file at path, decodes it, and verifies it.
// The format follows the extension: .yaml or .yml, .toml, .json or
// .jsonc. Plan files are resolved relative to the scenario's directory.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	table, err := ParseTable(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	scenario, err := Decode(table, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("decoding scenario %s: %w", path, err)
	}
	if err := scenario.Verify(); err != nil {
		return nil, fmt.Errorf("verifying scenario %s: %w", path, err)
	}
	return scenario, nil
}

// ParseTable decodes scenario file content in the format named by
// extension (with its leading dot).
func ParseTable(data []byte, extension string) (Table, error) {
	var raw map[string]any
	switch strings.ToLower(extension) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported scenario format %q (want .yaml, .yml, .toml, .json, or .jsonc)", extension)
	}

	table := make(Table, len(raw))
	for key, value := range raw {
		records, err := recordList(value)
		if err != nil {
			return nil, fmt.Errorf("offset %q: %w", key, err)
		}
		table[key] = records
	}
	return table, nil
}

// recordList normalizes the list shapes the three decoders produce.
func recordList(value any) ([]map[string]any, error) {
	switch value := value.(type) {
	case []map[string]any:
		return value, nil
	case map[string]any:
		return []map[string]any{value}, nil
	case []any:
		records := make([]map[string]any, 0, len(value))
		for i, element := range value {
			record, ok := element.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("entry %d: expected a table, got %T", i, element)
			}
			records = append(records, record)
		}
		return records, nil
	default:
		return nil, fmt.Errorf("expected a list of tables, got %T", value)
	}
}

var recordKeys = map[string]bool{
	"type": true, "login": true, "name": true, "home": true, "shell": true,
	"office": true, "plan": true, "session": true, "line": true, "host": true,
}

// Decode builds a scenario from table. Offsets are replayed in
// increasing order; records under the same key keep their order, and
// distinct keys naming the same offset are taken in lexical order.
//
// Ending records (interrupt, freeze, stop, repeat) set the ending
// instead of adding an action, and the earliest one wins. interrupt is
// an alias for stop. Without an ending record the scenario freezes
// DefaultEndingDelay after its last action.
func Decode(table Table, baseDir string) (*Scenario, error) {
	type keyed struct {
		key    string
		offset time.Duration
	}
	keys := make([]keyed, 0, len(table))
	for key := range table {
		offset, err := ParseOffset(key)
		if err != nil {
			return nil, err
		}
		keys = append(keys, keyed{key, offset})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].offset != keys[j].offset {
			return keys[i].offset < keys[j].offset
		}
		return keys[i].key < keys[j].key
	})

	scenario := New()
	endingSet := false
	var lastOffset time.Duration
	for _, k := range keys {
		for i, record := range table[k.key] {
			decoder := recordDecoder{record: record, baseDir: baseDir}
			kind, err := decoder.kind()
			if err != nil {
				return nil, fmt.Errorf("offset %s, entry %d: %w", k.key, i, err)
			}

			if ending, ok := endingKinds[kind]; ok {
				if ending == Repeat && k.offset == 0 {
					return nil, fmt.Errorf("offset %s, entry %d: repeat ending at offset zero", k.key, i)
				}
				if !endingSet {
					scenario.Ending = ending
					scenario.EndingOffset = k.offset
					endingSet = true
				}
				continue
			}

			action, err := decoder.action(kind)
			if err != nil {
				return nil, fmt.Errorf("offset %s, entry %d: %w", k.key, i, err)
			}
			scenario.Add(k.offset, action)
			lastOffset = k.offset
		}
	}
	if !endingSet {
		scenario.Ending = Freeze
		scenario.EndingOffset = lastOffset + DefaultEndingDelay
	}
	return scenario, nil
}

var endingKinds = map[string]Ending{
	"interrupt": Stop,
	"stop":      Stop,
	"freeze":    Freeze,
	"repeat":    Repeat,
}

type recordDecoder struct {
	record  map[string]any
	baseDir string
}

func (d recordDecoder) kind() (string, error) {
	for key := range d.record {
		if !recordKeys[key] {
			return "", fmt.Errorf("unknown field %q", key)
		}
	}
	kind, present, err := d.string("type")
	if err != nil {
		return "", err
	}
	if !present {
		return "", fmt.Errorf("missing field \"type\"")
	}
	return kind, nil
}

func (d recordDecoder) action(kind string) (Action, error) {
	login, present, err := d.string("login")
	if err != nil {
		return nil, err
	}
	if !present || login == "" {
		return nil, fmt.Errorf("%s: missing field \"login\"", kind)
	}

	switch kind {
	case "create":
		action := CreateUser{Login: login}
		for key, target := range map[string]*string{
			"name": &action.Name, "home": &action.Home, "shell": &action.Shell, "office": &action.Office,
		} {
			if *target, _, err = d.string(key); err != nil {
				return nil, err
			}
		}
		plan, err := d.plan()
		if err != nil {
			return nil, err
		}
		action.Plan, action.HasPlan = plan.Value()
		return action, nil

	case "update":
		action := EditUser{Login: login}
		for key, target := range map[string]*Field[string]{
			"name": &action.Name, "home": &action.Home, "shell": &action.Shell, "office": &action.Office,
		} {
			value, present, err := d.string(key)
			if err != nil {
				return nil, err
			}
			if present {
				*target = Set(value)
			}
		}
		if action.Plan, err = d.plan(); err != nil {
			return nil, err
		}
		return action, nil

	case "delete":
		return DeleteUser{Login: login}, nil

	case "login":
		action := Login{Login: login}
		for key, target := range map[string]*string{
			"session": &action.Session, "line": &action.Line, "host": &action.Host,
		} {
			if *target, _, err = d.string(key); err != nil {
				return nil, err
			}
		}
		return action, nil

	case "logout", "idle", "active":
		session, _, err := d.string("session")
		if err != nil {
			return nil, err
		}
		if kind == "logout" {
			return Logout{Login: login, Session: session}, nil
		}
		return SessionChange{Login: login, Session: session, Idle: kind == "idle"}, nil

	default:
		return nil, fmt.Errorf("unknown action type %q", kind)
	}
}

func (d recordDecoder) string(key string) (string, bool, error) {
	value, present := d.record[key]
	if !present {
		return "", false, nil
	}
	text, ok := value.(string)
	if !ok {
		return "", false, fmt.Errorf("field %q: expected a string, got %T", key, value)
	}
	return text, true, nil
}

// plan reads the plan field: absent keeps the plan, false clears it,
// and a string names a text file holding the new plan.
func (d recordDecoder) plan() (Field[string], error) {
	value, present := d.record["plan"]
	if !present {
		return Keep[string](), nil
	}
	switch value := value.(type) {
	case bool:
		if value {
			return Field[string]{}, fmt.Errorf("field \"plan\": expected a path or false, got true")
		}
		return Clear[string](), nil
	case string:
		path := value
		if !filepath.IsAbs(path) {
			path = filepath.Join(d.baseDir, path)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return Field[string]{}, fmt.Errorf("reading plan: %w", err)
		}
		return Set(string(content)), nil
	default:
		return Field[string]{}, fmt.Errorf("field \"plan\": expected a path or false, got %T", value)
	}
}
