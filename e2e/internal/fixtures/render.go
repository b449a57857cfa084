package fixtures

import (
	"bytes"
	"fmt"
	"text/template"
)

func seq(start, end int) []int {
	if start > end {
		return []int{}
	}
	result := make([]int, end-start+1)
	for i := range result {
		result[i] = start + i
	}
	return result
}

var templateFuncs = template.FuncMap{
	"seq": seq,
}

// Render executes a fixture template with the given data.
func Render(name string, fixture []byte, data any) ([]byte, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(string(fixture))
	if err != nil {
		return nil, fmt.Errorf("error parsing template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("error executing template: %w", err)
	}
	return buf.Bytes(), nil
}
