package core

// Fielder resolves a field by its query-language name. The second return is
// false when the field does not exist on the layer, which the match engine
// treats as "no match" rather than an error.
type Fielder interface {
	Field(name string) (interface{}, bool)
}

// Field is a single named value in a decoded operation. Nested structures
// use Fields values.
type Field struct {
	Name  string
	Value interface{}
}

// Fields is an ordered name/value list. Order matters: lookup is
// depth-first in declaration order so flattened-name matches are
// deterministic.
type Fields []Field

// Get resolves name against the list, recursing into nested Fields values
// depth-first. The first hit in declaration order wins.
func (f Fields) Get(name string) (interface{}, bool) {
	for _, fl := range f {
		if fl.Name == name {
			return fl.Value, true
		}
	}
	for _, fl := range f {
		if sub, ok := fl.Value.(Fields); ok {
			if v, ok := sub.Get(name); ok {
				return v, true
			}
		}
	}
	return nil, false
}

// MustUint32 returns the named field as uint32, zero when absent or of a
// different type.
func (f Fields) MustUint32(name string) uint32 {
	v, ok := f.Get(name)
	if !ok {
		return 0
	}
	u, _ := v.(uint32)
	return u
}

// Field implements Fielder so nested Fields values can be walked with
// dotted paths.
func (f Fields) Field(name string) (interface{}, bool) {
	return f.Get(name)
}

// Resolve walks a dotted field path against a root Fielder.
func Resolve(root Fielder, path []string) (interface{}, bool) {
	var v interface{} = root
	for _, name := range path {
		fl, ok := v.(Fielder)
		if !ok {
			return nil, false
		}
		if v, ok = fl.Field(name); !ok {
			return nil, false
		}
	}
	return v, true
}
