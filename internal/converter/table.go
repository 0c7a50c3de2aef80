package converter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// table is a column-ordered record set shared by the tabular and office
// converters.
type table struct {
	header []string
	rows   [][]any
}

func (t *table) addColumn(name string) int {
	for i, h := range t.header {
		if h == name {
			return i
		}
	}
	t.header = append(t.header, name)
	return len(t.header) - 1
}

// fromStrings builds a table whose first row is the header; cells are typed
// with inferCell.
func fromStrings(records [][]string) *table {
	t := &table{}
	if len(records) == 0 {
		return t
	}
	for _, h := range records[0] {
		t.addColumn(strings.TrimSpace(h))
	}
	for _, rec := range records[1:] {
		row := make([]any, len(t.header))
		for i := 0; i < len(rec) && i < len(row); i++ {
			row[i] = inferCell(rec[i])
		}
		t.rows = append(t.rows, row)
	}
	return t
}

// inferCell types a text cell the way spreadsheet tools do: integers,
// floats and booleans become values, empty cells become null.
func inferCell(s string) any {
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

func readCSV(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return fromStrings(records), nil
}

// readRecords parses a YAML or JSON sequence of mappings. yaml.v3 nodes keep
// key order, and JSON is valid YAML, so one parser serves both.
func readRecords(r io.Reader) (*table, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return &table{}, nil
		}
		return nil, fmt.Errorf("parse records: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}

	var items []*yaml.Node
	switch root.Kind {
	case yaml.SequenceNode:
		items = root.Content
	case yaml.MappingNode:
		items = []*yaml.Node{root}
	default:
		return nil, fmt.Errorf("parse records: expected a list of objects")
	}

	t := &table{}
	for _, item := range items {
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("parse records: line %d: expected an object", item.Line)
		}
		values := make(map[int]any, len(item.Content)/2)
		for i := 0; i+1 < len(item.Content); i += 2 {
			col := t.addColumn(item.Content[i].Value)
			v, err := nodeValue(item.Content[i+1])
			if err != nil {
				return nil, err
			}
			values[col] = v
		}
		row := make([]any, len(t.header))
		for col, v := range values {
			row[col] = v
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// nodeValue decodes scalars to Go values and renders nested structures as
// compact JSON text.
func nodeValue(n *yaml.Node) (any, error) {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse records: line %d: %w", n.Line, err)
	}
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return v, nil
}

func (t *table) cell(row []any, col int) any {
	if col < len(row) {
		return row[col]
	}
	return nil
}

func (t *table) writeCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return err
	}
	rec := make([]string, len(t.header))
	for _, row := range t.rows {
		for i := range t.header {
			rec[i] = cellText(t.cell(row, i))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// orderedRecord marshals one row as a JSON object in header order.
type orderedRecord struct {
	keys   []string
	values []any
}

func (r orderedRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *table) records() []orderedRecord {
	out := make([]orderedRecord, 0, len(t.rows))
	for _, row := range t.rows {
		values := make([]any, len(t.header))
		for i := range t.header {
			values[i] = t.cell(row, i)
		}
		out = append(out, orderedRecord{keys: t.header, values: values})
	}
	return out
}

func (t *table) writeJSON(w io.Writer) error {
	b, err := json.MarshalIndent(t.records(), "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

func (t *table) writeYAML(w io.Writer) error {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range t.rows {
		m := &yaml.Node{Kind: yaml.MappingNode}
		for i, h := range t.header {
			var val yaml.Node
			if err := val.Encode(t.cell(row, i)); err != nil {
				return err
			}
			m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: h}, &val)
		}
		seq.Content = append(seq.Content, m)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(seq); err != nil {
		return err
	}
	return enc.Close()
}

func (t *table) write(w io.Writer, format string) error {
	switch format {
	case "csv":
		return t.writeCSV(w)
	case "json":
		return t.writeJSON(w)
	case "yaml":
		return t.writeYAML(w)
	}
	return fmt.Errorf("%w: tabular output %s", ErrUnsupportedPair, format)
}
