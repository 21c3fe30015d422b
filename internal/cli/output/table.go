package output

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"
)

// Table is tabular data with optional headers.
type Table struct {
	Headers []string
	Rows    [][]string
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render writes the table with aligned columns.
func (t *Table) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// TableFormatter renders a Table directly. A struct becomes a FIELD/VALUE
// table and a slice of structs becomes one row per element.
type TableFormatter struct{}

// Format implements Formatter.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	switch t := data.(type) {
	case nil:
		return nil
	case *Table:
		return t.Render(w)
	case Table:
		return t.Render(w)
	}

	table, err := toTable(reflect.ValueOf(data))
	if err != nil {
		return (&JSONFormatter{}).Format(w, data)
	}
	return table.Render(w)
}

func toTable(v reflect.Value) (*Table, error) {
	v = indirect(v)
	switch v.Kind() {
	case reflect.Struct:
		t := &Table{Headers: []string{"FIELD", "VALUE"}}
		walkFields(v, func(name string, fv reflect.Value) {
			t.AddRow(name, formatValue(fv))
		})
		return t, nil

	case reflect.Slice, reflect.Array:
		t := &Table{}
		for i := 0; i < v.Len(); i++ {
			elem := indirect(v.Index(i))
			if elem.Kind() != reflect.Struct {
				return nil, fmt.Errorf("unsupported element kind %s", elem.Kind())
			}
			var row []string
			walkFields(elem, func(name string, fv reflect.Value) {
				if i == 0 {
					t.Headers = append(t.Headers, strings.ToUpper(name))
				}
				row = append(row, formatValue(fv))
			})
			t.Rows = append(t.Rows, row)
		}
		return t, nil

	case reflect.Map:
		t := &Table{Headers: []string{"KEY", "VALUE"}}
		iter := v.MapRange()
		for iter.Next() {
			t.AddRow(formatValue(iter.Key()), formatValue(iter.Value()))
		}
		return t, nil

	default:
		return nil, fmt.Errorf("unsupported kind %s", v.Kind())
	}
}

// walkFields visits exported fields by their json name, flattening
// embedded structs.
func walkFields(v reflect.Value, fn func(name string, fv reflect.Value)) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if field.Anonymous && name == "" && indirect(v.Field(i)).Kind() == reflect.Struct {
			walkFields(indirect(v.Field(i)), fn)
			continue
		}
		if name == "" {
			name = field.Name
		}
		fn(name, v.Field(i))
	}
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

var timeType = reflect.TypeOf(time.Time{})

func formatValue(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return "-"
	}
	if v.Type() == timeType {
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format(time.DateTime)
	}

	switch v.Kind() {
	case reflect.String:
		if v.Len() == 0 {
			return "-"
		}
		return v.String()
	case reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%.2f", v.Float())
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "-"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "-"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return fmt.Sprintf("%+v", v.Interface())
	default:
		return fmt.Sprint(v.Interface())
	}
}
