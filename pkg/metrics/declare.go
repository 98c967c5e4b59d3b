package metrics

import (
	"fmt"
	"path"
	"reflect"
	"strings"

	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

var (
	int64Measure   = reflect.TypeOf((*stats.Int64Measure)(nil))
	float64Measure = reflect.TypeOf((*stats.Float64Measure)(nil))
)

// declaration describes a measure by the tags of a struct field, e.g.
//
//	Count *stats.Int64Measure `metric:"usageCount" description:"number of calls" tags:"root,method"`
//
// Recognized tags:
//   - metric: the name of the measure, appended to the group path of the enclosing structs
//   - unit: count (the default), bytes, sumbytes, milliseconds or bytespersec
//   - description: defaults to the name and the unit
//   - tags: the tag keys of the views
//   - extraviews: other aggregations of the same measure (count, sum, lastvalue)
type declaration struct {
	name        string
	unit        string
	description string
	keys        []tag.Key
	extra       []string
}

func declare(group string, field reflect.StructField) (declaration, bool) {
	metric := field.Tag.Get("metric")
	if metric == "" {
		return declaration{}, false
	}

	d := declaration{
		name:        path.Join(group, metric),
		unit:        field.Tag.Get("unit"),
		description: field.Tag.Get("description"),
		extra:       splitList(field.Tag.Get("extraviews")),
	}
	if d.description == "" {
		d.description = describeFromUnit(d.name, d.unit)
	}
	for _, key := range splitList(field.Tag.Get("tags")) {
		d.keys = append(d.keys, tag.MustNewKey(key))
	}
	return d, true
}

func splitList(list string) []string {
	var items []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// declareAll allocates every measure declared by the struct pointed to by m.
//
// Nested structs tagged with a group extend the path of their measures.
// Other fields are left alone.
func declareAll(location string, m interface{}, allocate func(declaration, reflect.Type) stats.Measure) {
	rv := reflect.ValueOf(m)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("metrics are declared by a pointer to a struct, got: %T", m))
	}
	declareFields(location, rv.Elem(), allocate)
}

func declareFields(group string, sv reflect.Value, allocate func(declaration, reflect.Type) stats.Measure) {
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		field, fv := st.Field(i), sv.Field(i)
		if !fv.CanSet() {
			continue
		}

		if field.Type == int64Measure || field.Type == float64Measure {
			if d, ok := declare(group, field); ok {
				fv.Set(reflect.ValueOf(allocate(d, field.Type)))
			}
			continue
		}

		subgroup, ok := field.Tag.Lookup("group")
		if !ok {
			continue
		}
		switch {
		case field.Type.Kind() == reflect.Struct:
			declareFields(path.Join(group, subgroup), fv, allocate)
		case field.Type.Kind() == reflect.Ptr && field.Type.Elem().Kind() == reflect.Struct:
			if fv.IsNil() {
				fv.Set(reflect.New(field.Type.Elem()))
			}
			declareFields(path.Join(group, subgroup), fv.Elem(), allocate)
		}
	}
}
