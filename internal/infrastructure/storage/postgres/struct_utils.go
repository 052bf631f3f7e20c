package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns lists the column names from the "db" tags of T,
// descending into embedded structs. Fields tagged "-" are skipped.
// Call it once at repository construction.
func ExtractDBColumns[T any]() []string {
	var zero T
	meta := typeMetadataFor(reflect.TypeOf(zero))
	return meta.columns()
}

type fieldInfo struct {
	index int
	dbTag string
}

type typeMetadata struct {
	fields   []fieldInfo
	embedded []*embeddedField
}

type embeddedField struct {
	index int
	meta  *typeMetadata
}

func (m *typeMetadata) columns() []string {
	cols := make([]string, 0, len(m.fields))
	for _, e := range m.embedded {
		cols = append(cols, e.meta.columns()...)
	}
	for _, f := range m.fields {
		cols = append(cols, f.dbTag)
	}
	return cols
}

var typeCache sync.Map // map[reflect.Type]*typeMetadata

func typeMetadataFor(t reflect.Type) *typeMetadata {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{}
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.Anonymous {
				meta.embedded = append(meta.embedded, &embeddedField{index: i, meta: typeMetadataFor(field.Type)})
				continue
			}
			tag := field.Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			meta.fields = append(meta.fields, fieldInfo{index: i, dbTag: tag})
		}
	}

	typeCache.Store(t, meta)
	return meta
}

// StructToMap converts a struct (or pointer to one) to a column map using
// "db" tags. Type metadata is cached after the first call per type.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	res := make(map[string]any)
	fill(res, rv, typeMetadataFor(rv.Type()))
	return res
}

func fill(res map[string]any, rv reflect.Value, meta *typeMetadata) {
	for _, e := range meta.embedded {
		ev := rv.Field(e.index)
		if ev.Kind() == reflect.Ptr {
			if ev.IsNil() {
				continue
			}
			ev = ev.Elem()
		}
		fill(res, ev, e.meta)
	}
	for _, f := range meta.fields {
		res[f.dbTag] = rv.Field(f.index).Interface()
	}
}
