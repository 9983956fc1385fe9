package domain

import "strings"

// Header is one response header set by a sheet.
type Header struct {
	Name  string
	Value string
}

// Response is the HTTP metadata a sheet sets next to its document.
// A zero Status leaves the choice to the front end.
type Response struct {
	Status  int
	Headers []Header
}

// Values returns the values set for name, compared case-insensitively.
func (r Response) Values(name string) []string {
	var out []string
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			out = append(out, h.Value)
		}
	}
	return out
}
