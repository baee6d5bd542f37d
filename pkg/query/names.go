package query

import (
	"regexp"
	"strings"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// blockedNames are compared case-insensitively: object prototype members
// followed by names reserved by the relational backend.
var blockedNames = map[string]bool{
	"__proto__":          true,
	"constructor":        true,
	"prototype":          true,
	"hasownproperty":     true,
	"isprototypeof":      true,
	"tostring":           true,
	"tolocalestring":     true,
	"valueof":            true,
	"rowid":              true,
	"oid":                true,
	"_rowid_":            true,
	"sqlite_master":      true,
	"sqlite_sequence":    true,
	"sqlite_stat1":       true,
	"sqlite_temp_master": true,
}

// CheckName validates a table or column identifier. It never sanitizes:
// an unsafe name is a ValidationError.
func CheckName(name string) error {
	switch {
	case name == "":
		return invalid("empty identifier")
	case strings.HasPrefix(name, "__"):
		return invalid("identifier %q must not start with a double underscore", name)
	case blockedNames[strings.ToLower(name)]:
		return invalid("identifier %q is reserved", name)
	case !namePattern.MatchString(name):
		return invalid("identifier %q must be alphanumeric", name)
	}
	return nil
}
