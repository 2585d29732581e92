// Package connstring parses the connection descriptors that group
// administrators paste into the database configuration form. The accepted
// shape is the client invocation their provider hands them, e.g.
//
//	psql -h db.example.com -p 5432 -d postgres -U alice
package connstring

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/grouplog-io/grouplog-engine/pkg/apperrors"
)

// Descriptor identifies one external database instance. The password travels
// separately and is never part of the descriptor.
type Descriptor struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
}

// All four flags are required. The port must be explicit: defaulting it
// silently has caused driver-level type errors downstream before.
var descriptorPattern = regexp.MustCompile(`^\S+\s+-h\s+(\S+)\s+-p\s+(\d+)\s+-d\s+(\S+)\s+-U\s+(\S+)$`)

// Parse extracts host, port, database and user from a connection command
// string. Returns apperrors.ErrMalformedConnectionString when any of the four
// required tokens is absent or the port is not a positive integer.
func Parse(connectionString string) (*Descriptor, error) {
	trimmed := strings.TrimSpace(connectionString)

	m := descriptorPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return nil, fmt.Errorf("%w: expected '<client> -h hostname -p port -d database -U username'",
			apperrors.ErrMalformedConnectionString)
	}

	port, err := strconv.Atoi(m[2])
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port %q is not a valid port number",
			apperrors.ErrMalformedConnectionString, m[2])
	}

	return &Descriptor{
		Host:     m[1],
		Port:     port,
		Database: m[3],
		User:     m[4],
	}, nil
}

// DSN renders the descriptor plus a password as a keyword/value connection
// string for pgx. Every value is quoted per libpq rules: an unquoted password
// containing a space would be truncated by the driver's tokenizer, and one
// containing key=value syntax would override connection parameters. TLS
// negotiation is left to the driver.
func (d *Descriptor) DSN(password, sslMode string) string {
	if sslMode == "" {
		sslMode = "require"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		quoteDSNValue(d.Host), d.Port, quoteDSNValue(d.Database),
		quoteDSNValue(d.User), quoteDSNValue(password), quoteDSNValue(sslMode))
}

// quoteDSNValue single-quotes a keyword/value setting, escaping backslashes
// and embedded quotes the way libpq expects.
func quoteDSNValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Redacted renders the descriptor for logs and admin responses without any
// credential material.
func (d *Descriptor) Redacted() string {
	return fmt.Sprintf("%s@%s:%d/%s", d.User, d.Host, d.Port, d.Database)
}
