package sge

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type QueryKey string

const (
	QueryJobList   QueryKey = "job_list"
	QueryQueueList QueryKey = "Queue-List"
)

const documentRoot = "job_info"

// record groups, queue rows first
var recordGroups = []string{"queue_info", "job_info"}

type ColumnType int

const (
	TypeString ColumnType = iota
	TypeFloat
)

// Schema maps a column name to its semantic type. Columns not listed keep
// their raw text.
type Schema map[string]ColumnType

// DefaultSchema is applied by ParseJobInfo.
var DefaultSchema = Schema{
	"@state":         TypeString,
	"cpu_usage":      TypeFloat,
	"mem_usage":      TypeFloat,
	"io_usage":       TypeFloat,
	"slots":          TypeFloat,
	"JAT_prio":       TypeFloat,
	"hard_req_queue": TypeString,
	"JB_owner":       TypeString,
	"JB_department":  TypeString,
	"JB_project":     TypeString,
}

// Item is one occurrence of a child element: its attributes, its text and
// the text of any leaf elements nested under it.
type Item struct {
	Attrs  map[string]string
	Text   string
	Fields map[string]string
}

// Record is one flattened job_list or Queue-List element. Child elements
// become columns; attributes become "@name" columns.
type Record struct {
	columns map[string][]Item
	floats  map[string]float64
}

func newRecord() Record {
	return Record{columns: make(map[string][]Item), floats: make(map[string]float64)}
}

// Has reports whether the column is present on this row.
func (r Record) Has(column string) bool {
	_, ok := r.columns[column]
	return ok
}

// String returns the text of the first value of column.
func (r Record) String(column string) (string, bool) {
	items, ok := r.columns[column]
	if !ok || len(items) == 0 {
		return "", false
	}
	return items[0].Text, true
}

// Float returns a schema-coerced float column.
func (r Record) Float(column string) (float64, bool) {
	v, ok := r.floats[column]
	return v, ok
}

// Entries returns every value of a possibly repeated column.
func (r Record) Entries(column string) []Item {
	return r.columns[column]
}

// Columns lists the columns present on this row.
func (r Record) Columns() []string {
	return lo.Keys(r.columns)
}

func (r *Record) add(column string, item Item) {
	r.columns[column] = append(r.columns[column], item)
}

func (r *Record) drop(column string) {
	delete(r.columns, column)
	delete(r.floats, column)
}

// Table is the concatenation of queue rows and job rows of one payload.
type Table struct {
	Columns []string
	Rows    []Record
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ParseJobInfo decodes a qstat -xml payload and returns the rows named by
// query under the queue_info and job_info groups, coerced with DefaultSchema.
// A missing or empty group yields no rows; malformed XML is an error.
func ParseJobInfo(payload []byte, query QueryKey) (*Table, error) {
	return ParseJobInfoWithSchema(payload, query, DefaultSchema)
}

func ParseJobInfoWithSchema(payload []byte, query QueryKey, schema Schema) (*Table, error) {
	root, err := decodeTree(payload)
	if err != nil {
		return nil, err
	}

	table := &Table{}
	if root.name != documentRoot {
		log.Warn().Str("root", root.name).Msg("qstat xml has unexpected document root")
		return table, nil
	}

	for _, groupName := range recordGroups {
		group, ok := root.firstChild(groupName)
		if !ok {
			log.Warn().Str("group", groupName).Msg("record group is not in qstat xml output")
			continue
		}
		if len(group.children) == 0 {
			continue
		}
		matches := group.childrenNamed(string(query))
		if len(matches) == 0 {
			log.Warn().Str("group", groupName).Str("query", string(query)).Msg("query key is not in qstat xml output")
			continue
		}
		for _, el := range matches {
			table.Rows = append(table.Rows, flatten(el))
		}
	}

	table.Columns = collectColumns(table.Rows)
	schema.apply(table)
	return table, nil
}

func flatten(el *element) Record {
	rec := newRecord()
	for name, value := range el.attrs {
		rec.add("@"+name, Item{Text: value})
	}
	for _, child := range el.children {
		item := Item{Attrs: child.attrs, Text: child.trimmedText()}
		for _, leaf := range child.children {
			if len(leaf.children) > 0 {
				continue
			}
			if item.Fields == nil {
				item.Fields = make(map[string]string)
			}
			item.Fields[leaf.name] = leaf.trimmedText()
		}
		rec.add(child.name, item)
	}
	return rec
}

func collectColumns(rows []Record) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, row := range rows {
		cols := row.Columns()
		sort.Strings(cols)
		for _, col := range cols {
			if _, ok := seen[col]; ok {
				continue
			}
			seen[col] = struct{}{}
			out = append(out, col)
		}
	}
	return out
}

// apply coerces only the schema columns that occur in the table. A value
// that fails coercion is removed from its row.
func (s Schema) apply(t *Table) {
	present := lo.Filter(t.Columns, func(col string, _ int) bool {
		_, ok := s[col]
		return ok
	})
	for i := range t.Rows {
		row := &t.Rows[i]
		for _, col := range present {
			if s[col] != TypeFloat || !row.Has(col) {
				continue
			}
			raw, _ := row.String(col)
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				log.Warn().Str("column", col).Str("value", raw).Msg("cannot coerce qstat column to float; dropping value")
				row.drop(col)
				continue
			}
			row.floats[col] = v
		}
	}
}

// RunningJobsFromTable builds RunningJobRecords from job rows whose state
// attribute is running. Missing numeric columns contribute 0.
func RunningJobsFromTable(t *Table) []RunningJobRecord {
	if t == nil {
		return nil
	}
	var out []RunningJobRecord
	for _, row := range t.Rows {
		state, _ := row.String("@state")
		if state != "running" && state != "r" {
			continue
		}
		out = append(out, runningJobFromRecord(row))
	}
	return out
}

func runningJobFromRecord(row Record) RunningJobRecord {
	owner, _ := row.String("JB_owner")
	jobNumber, _ := row.String("JB_job_number")
	queue, _ := row.String("queue_name")
	slots, _ := row.Float("slots")
	cpu, _ := row.Float("cpu_usage")
	mem, _ := row.Float("mem_usage")
	io, _ := row.Float("io_usage")
	prio, _ := row.Float("JAT_prio")
	binding, hasBinding := row.String("binding")
	if taskID, ok := row.String("tasks"); ok && taskID != "" {
		jobNumber += "." + taskID
	}

	return RunningJobRecord{
		Owner:       owner,
		JobNumber:   jobNumber,
		Slots:       slots,
		QueueName:   queue,
		CPUUsage:    cpu,
		MemUsage:    mem,
		IOUsage:     io,
		Priority:    prio,
		HardRequest: RequestFromItems(row.Entries("hard_request")),
		CoreBinding: binding,
		HasBinding:  hasBinding,
	}
}
