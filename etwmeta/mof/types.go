package mof

import "strings"

// Mappings from MOF types to the CIM type names WMI reports for properties
var cimTypes = map[string]string{
	"uint8":    "UInt8",
	"uint16":   "UInt16",
	"uint32":   "UInt32",
	"uint64":   "UInt64",
	"sint8":    "SInt8",
	"sint16":   "SInt16",
	"sint32":   "SInt32",
	"sint64":   "SInt64",
	"real32":   "Real32",
	"real64":   "Real64",
	"boolean":  "Boolean",
	"string":   "String",
	"datetime": "DateTime",
	"char16":   "Char16",
	"object":   "Object",
}

// CIMType returns the CIM type name of a MOF property type. Unknown types are
// returned unchanged.
func CIMType(mofType string) string {
	if t, ok := cimTypes[strings.ToLower(mofType)]; ok {
		return t
	}
	return mofType
}

const cimReference = "Reference"
