package sge

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"grid_monitor/internal/units"
)

const (
	ResourceNumProc     = "num_proc"
	ResourceVirtualFree = "virtual_free"
)

// ResourceEntry is one named resource of a job or queue request. Unnamed
// entries come from sources that only carry raw text.
type ResourceEntry struct {
	Name string
	Text string
}

// ResourceRequest is an ordered list of resource entries. A single entry is
// a one-element request.
type ResourceRequest []ResourceEntry

// Last returns the last entry called name.
func (r ResourceRequest) Last(name string) (ResourceEntry, bool) {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i].Name == name {
			return r[i], true
		}
	}
	return ResourceEntry{}, false
}

// RequestFromItems converts hard_request elements, whose name is carried by
// the name attribute, into a request.
func RequestFromItems(items []Item) ResourceRequest {
	out := make(ResourceRequest, 0, len(items))
	for _, item := range items {
		out = append(out, entryFromItem(item))
	}
	return out
}

// RequestFromTexts converts raw resource texts such as "hc:num_proc=8".
// Text without "=" becomes an unnamed entry.
func RequestFromTexts(texts []string) ResourceRequest {
	out := make(ResourceRequest, 0, len(texts))
	for _, text := range texts {
		out = append(out, entryFromText(text))
	}
	return out
}

func entryFromItem(item Item) ResourceEntry {
	return ResourceEntry{Name: strings.TrimSpace(item.Attrs["name"]), Text: strings.TrimSpace(item.Text)}
}

func entryFromText(text string) ResourceEntry {
	text = strings.TrimSpace(text)
	key, value, ok := strings.Cut(text, "=")
	if !ok {
		return ResourceEntry{Text: text}
	}
	if idx := strings.LastIndex(key, ":"); idx >= 0 {
		key = key[idx+1:]
	}
	return ResourceEntry{Name: strings.TrimSpace(key), Text: strings.TrimSpace(value)}
}

// ExtractMemCore returns the memory and core count a request asks for. Only
// num_proc and virtual_free are interpreted and the last occurrence of each
// wins. Malformed entries are skipped with a warning; a virtual_free that
// cannot be converted returns its *units.ParseError alongside the values
// gathered so far.
func ExtractMemCore(req ResourceRequest) (units.ByteQuantity, int, error) {
	var (
		mem      units.ByteQuantity
		core     int
		firstErr error
	)
	for _, entry := range req {
		if entry.Name == "" {
			log.Warn().Str("value", entry.Text).Msg("skipping unnamed resource entry")
			continue
		}
		switch entry.Name {
		case ResourceNumProc:
			n, err := strconv.Atoi(strings.TrimSpace(entry.Text))
			if err != nil {
				log.Warn().Str("resource", entry.Name).Str("value", entry.Text).Msg("skipping unparseable core count")
				continue
			}
			core = n
		case ResourceVirtualFree:
			v, err := ParseMemory(entry.Text)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			mem = v
		}
	}
	return mem, core, firstErr
}

// ParseMemory converts a scheduler memory string; a trailing digit means the
// value is in bytes.
func ParseMemory(text string) (units.ByteQuantity, error) {
	text = strings.TrimSpace(text)
	if text != "" && isASCIIDigit(text[len(text)-1]) {
		text += "B"
	}
	return units.ParseByteQuantity(text)
}

func isASCIIDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
