package mindsql

import (
	"fmt"
	"strings"
)

// DatabaseSpec describes a datasource connection.
type DatabaseSpec struct {
	Name       string
	Engine     string
	Parameters []Field
}

// CreateDatabase builds CREATE DATABASE ... WITH ENGINE.
func CreateDatabase(spec DatabaseSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("datasource name is required")
	}
	if strings.TrimSpace(spec.Engine) == "" {
		return "", fmt.Errorf("datasource engine is required")
	}
	sql := fmt.Sprintf("CREATE DATABASE %s\nWITH ENGINE = %s", Ident(spec.Name), Quote(spec.Engine))
	if len(spec.Parameters) > 0 {
		sql += ",\nPARAMETERS = " + Object(spec.Parameters...)
	}
	return sql + ";", nil
}

// DropDatabase builds DROP DATABASE.
func DropDatabase(name string) string {
	return fmt.Sprintf("DROP DATABASE %s;", Ident(name))
}

// ShowDatabases lists datasources and projects.
func ShowDatabases() string {
	return "SHOW DATABASES;"
}
