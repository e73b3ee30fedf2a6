package value

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ToJSON renders a value as JSON text.
func ToJSON(v Value) (string, error) {
	plain, err := toPlain(v)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(plain)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func toPlain(v Value) (interface{}, error) {
	switch v := v.(type) {
	case Nil:
		return nil, nil
	case Literal:
		return string(v), nil
	case Output:
		return string(v), nil
	case Number:
		return float64(v), nil
	case Bool:
		return bool(v), nil
	case List:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			plain, err := toPlain(item)
			if err != nil {
				return nil, err
			}
			out = append(out, plain)
		}
		return out, nil
	case Map:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			plain, err := toPlain(item)
			if err != nil {
				return nil, err
			}
			out[k] = plain
		}
		return out, nil
	case *Table:
		out := make([]interface{}, 0, len(v.Rows))
		for _, row := range v.Rows {
			record := make(map[string]interface{}, len(v.Cols))
			for i, col := range v.Cols {
				if i < len(row) {
					plain, err := toPlain(row[i])
					if err != nil {
						return nil, err
					}
					record[col] = plain
				}
			}
			out = append(out, record)
		}
		return out, nil
	case *Error:
		return map[string]interface{}{
			"error":   string(v.Class),
			"message": v.Message,
			"code":    v.Code,
		}, nil
	case Block:
		return v.String(), nil
	default:
		return nil, fmt.Errorf("cannot convert %s to JSON", v.Kind())
	}
}

// FromJSON parses JSON text into a value. Arrays of uniform objects
// become tables, other arrays become lists.
func FromJSON(text string) (Value, error) {
	var plain interface{}
	if err := json.Unmarshal([]byte(text), &plain); err != nil {
		return nil, err
	}
	return fromPlain(plain), nil
}

func fromPlain(plain interface{}) Value {
	switch plain := plain.(type) {
	case nil:
		return Nil{}
	case string:
		return Literal(plain)
	case float64:
		return Number(plain)
	case bool:
		return Bool(plain)
	case []interface{}:
		if table, ok := tableFromPlain(plain); ok {
			return table
		}
		out := make(List, 0, len(plain))
		for _, item := range plain {
			out = append(out, fromPlain(item))
		}
		return out
	case map[string]interface{}:
		out := make(Map, len(plain))
		for k, item := range plain {
			out[k] = fromPlain(item)
		}
		return out
	default:
		return Literal(fmt.Sprintf("%v", plain))
	}
}

// tableFromPlain converts an array of objects sharing the same keys into
// a table with sorted column order.
func tableFromPlain(items []interface{}) (*Table, bool) {
	if len(items) == 0 {
		return nil, false
	}

	var cols []string
	for i, item := range items {
		record, ok := item.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if i == 0 {
			for k := range record {
				cols = append(cols, k)
			}
			sort.Strings(cols)
			continue
		}
		if len(record) != len(cols) {
			return nil, false
		}
		for _, col := range cols {
			if _, ok := record[col]; !ok {
				return nil, false
			}
		}
	}

	table := &Table{Cols: cols}
	for _, item := range items {
		record := item.(map[string]interface{})
		row := make([]Value, 0, len(cols))
		for _, col := range cols {
			row = append(row, fromPlain(record[col]))
		}
		table.Rows = append(table.Rows, row)
	}
	return table, true
}
