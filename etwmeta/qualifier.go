package etwmeta

import (
	"fmt"
	"strings"
)

// QualifierKind tags the dynamic type of a qualifier value.
type QualifierKind uint8

const (
	QualifierInvalid QualifierKind = iota
	QualifierInt
	QualifierString
	QualifierIntArray
	QualifierStringArray
	QualifierBool
)

func (k QualifierKind) String() string {
	switch k {
	case QualifierInt:
		return "int"
	case QualifierString:
		return "string"
	case QualifierIntArray:
		return "int[]"
	case QualifierStringArray:
		return "string[]"
	case QualifierBool:
		return "bool"
	}
	return "invalid"
}

// QualifierValue is a tagged qualifier value. The zero value is invalid.
type QualifierValue struct {
	kind QualifierKind
	i    int64
	s    string
	ia   []int64
	sa   []string
}

func IntValue(i int64) QualifierValue { return QualifierValue{kind: QualifierInt, i: i} }

func StringValue(s string) QualifierValue { return QualifierValue{kind: QualifierString, s: s} }

func IntArrayValue(a ...int64) QualifierValue { return QualifierValue{kind: QualifierIntArray, ia: a} }

func StringArrayValue(a ...string) QualifierValue {
	return QualifierValue{kind: QualifierStringArray, sa: a}
}

func BoolValue(b bool) QualifierValue {
	v := QualifierValue{kind: QualifierBool}
	if b {
		v.i = 1
	}
	return v
}

func (v QualifierValue) Kind() QualifierKind { return v.kind }

// AsInt returns the value if it is an int.
func (v QualifierValue) AsInt() (int64, bool) {
	return v.i, v.kind == QualifierInt
}

func (v QualifierValue) AsString() (string, bool) {
	return v.s, v.kind == QualifierString
}

func (v QualifierValue) AsIntArray() ([]int64, bool) {
	return v.ia, v.kind == QualifierIntArray
}

func (v QualifierValue) AsStringArray() ([]string, bool) {
	return v.sa, v.kind == QualifierStringArray
}

func (v QualifierValue) AsBool() (bool, bool) {
	return v.i != 0, v.kind == QualifierBool
}

func (v QualifierValue) String() string {
	switch v.kind {
	case QualifierInt:
		return fmt.Sprint(v.i)
	case QualifierString:
		return v.s
	case QualifierIntArray:
		return fmt.Sprint(v.ia)
	case QualifierStringArray:
		return fmt.Sprint(v.sa)
	case QualifierBool:
		return fmt.Sprint(v.i != 0)
	}
	return "<invalid>"
}

// Qualifier is a named, typed annotation on a meta-class or property.
type Qualifier struct {
	Name  string
	Value QualifierValue
}

type Qualifiers []Qualifier

// Lookup returns the first qualifier whose name matches, ignoring case.
func (qs Qualifiers) Lookup(name string) (QualifierValue, bool) {
	for _, q := range qs {
		if strings.EqualFold(q.Name, name) {
			return q.Value, true
		}
	}
	return QualifierValue{}, false
}

// Int returns the named qualifier if it holds an int.
func (qs Qualifiers) Int(name string) (int64, bool) {
	v, ok := qs.Lookup(name)
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

// Text returns the named qualifier if it holds a string.
func (qs Qualifiers) Text(name string) (string, bool) {
	v, ok := qs.Lookup(name)
	if !ok {
		return "", false
	}
	return v.AsString()
}
