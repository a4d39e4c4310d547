// Package pretty renders query results for the CLI: JSON, YAML, or a
// plain table driven off a struct's `table` tags, adapted from the
// teacher's pkg/pretty (the bubbles/table TUI helper is dropped —
// cmd/hostfactoryd has no interactive mode).
package pretty

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// EncodeJSON takes any struct data and prints it in a pretty JSON format.
func EncodeJSON(data any) string {
	var buffer bytes.Buffer
	enc := json.NewEncoder(&buffer)
	enc.SetIndent("", "    ")
	if err := enc.Encode(data); err != nil {
		panic(err)
	}
	return buffer.String()
}

// EncodeYAML takes any struct data and prints it in a pretty YAML format.
func EncodeYAML(data any) string {
	out, err := yaml.Marshal(data)
	if err != nil {
		panic("unable to render yaml")
	}
	return string(out)
}

// Table takes any struct data and prints it in a table format. The
// struct fields must have a `table` tag with the column name; an
// optional `,wide` suffix hides the column unless wide is set.
func Table[T any](data []T, wide bool) string {
	headers, rows := HeadersAndRows(data, wide)
	out := bytes.Buffer{}
	table := tablewriter.NewWriter(&out)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(rows)
	table.Render()
	return out.String()
}

// HeadersAndRows reflects a slice of tagged structs into table headers
// and string rows.
func HeadersAndRows[T any](data []T, wide bool) ([]string, [][]string) {
	var headers []string
	var rows [][]string
	for _, dataRow := range data {
		var row []string
		headers = []string{}
		reflectStruct := reflect.Indirect(reflect.ValueOf(dataRow))
		for i := 0; i < reflectStruct.NumField(); i++ {
			typeField := reflectStruct.Type().Field(i)
			tag := typeField.Tag.Get("table")
			if tag == "" {
				continue
			}
			subtags := strings.Split(tag, ",")
			if len(subtags) > 1 && subtags[1] == "wide" && !wide {
				continue
			}
			headers = append(headers, subtags[0])
			row = append(row, reflectStruct.Field(i).String())
		}
		rows = append(rows, row)
	}
	return headers, rows
}
