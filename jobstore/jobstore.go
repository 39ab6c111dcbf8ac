// Package jobstore selects the persistent store backing a job scheduler.
//
// Operators name the store with the provider names used by scheduler
// deployments ("SQLite", "MySql", "Npgsql", ...). ParseProvider maps them
// onto a closed set of providers, each bound to exactly one SQL dialect
// delegate, and rejects anything else at startup.
package jobstore

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Provider identifies a supported job store database.
type Provider int

const (
	SQLite Provider = iota
	MySQL
	Oracle
	SQLServer
	PostgreSQL
	Firebird

	providerCount
)

// ErrUnknownProvider is wrapped by *UnknownProviderError.
var ErrUnknownProvider = errors.New("unknown job store provider")

// Delegate describes the SQL dialect used to talk to a provider.
type Delegate struct {
	// Name is the dialect delegate identifier.
	Name string
	// Driver is the database/sql driver name conventionally registered for
	// the provider.
	Driver string
}

// delegates is indexed by Provider; its length pins one entry per provider.
var delegates = [providerCount]Delegate{
	SQLite:     {Name: "SQLiteDelegate", Driver: "sqlite"},
	MySQL:      {Name: "MySQLDelegate", Driver: "mysql"},
	Oracle:     {Name: "OracleDelegate", Driver: "godror"},
	SQLServer:  {Name: "SqlServerDelegate", Driver: "sqlserver"},
	PostgreSQL: {Name: "PostgreSQLDelegate", Driver: "pgx"},
	Firebird:   {Name: "FirebirdDelegate", Driver: "firebirdsql"},
}

var providerNames = [providerCount]string{
	SQLite:     "SQLite",
	MySQL:      "MySql",
	Oracle:     "OracleODPManaged",
	SQLServer:  "SQLServer",
	PostgreSQL: "Npgsql",
	Firebird:   "Firebird",
}

// acceptedNames lists every operator-facing name. The canonical
// name of each provider must appear here.
var acceptedNames = []struct {
	name     string
	provider Provider
}{
	{"Firebird", Firebird},
	{"MySql", MySQL},
	{"Npgsql", PostgreSQL},
	{"OracleODPManaged", Oracle},
	{"SQLServer", SQLServer},
	{"SQLServerMOT", SQLServer},
	{"SQLite", SQLite},
	{"SQLite-Microsoft", SQLite},
}

// aliases maps lowercased accepted names to providers.
var aliases = func() map[string]Provider {
	m := make(map[string]Provider, len(acceptedNames))
	for _, n := range acceptedNames {
		m[strings.ToLower(n.name)] = n.provider
	}
	return m
}()

// AcceptedNames returns every name ParseProvider accepts, sorted.
func AcceptedNames() []string {
	names := make([]string, 0, len(acceptedNames))
	for _, n := range acceptedNames {
		names = append(names, n.name)
	}
	slices.Sort(names)
	return names
}

// UnknownProviderError reports a provider name outside the accepted set.
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("%v %q (accepted: %s)", ErrUnknownProvider, e.Name, strings.Join(AcceptedNames(), ", "))
}

func (e *UnknownProviderError) Unwrap() error { return ErrUnknownProvider }

// ParseProvider resolves an operator-facing provider name. Matching is
// case-insensitive and ignores surrounding whitespace.
//
// Example:
//
//	p, err := jobstore.ParseProvider("Npgsql")
//	// p == jobstore.PostgreSQL
func ParseProvider(name string) (Provider, error) {
	if p, ok := aliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p, nil
	}
	return 0, &UnknownProviderError{Name: name}
}

// Valid reports whether p is one of the declared providers.
func (p Provider) Valid() bool {
	return p >= 0 && p < providerCount
}

// String returns the canonical provider name.
func (p Provider) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Provider(%d)", int(p))
	}
	return providerNames[p]
}

// Delegate returns the dialect delegate of p.
func (p Provider) Delegate() Delegate {
	if !p.Valid() {
		return Delegate{}
	}
	return delegates[p]
}

// UnmarshalText implements encoding.TextUnmarshaler so providers can be
// decoded straight from configuration files.
func (p *Provider) UnmarshalText(text []byte) error {
	parsed, err := ParseProvider(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Provider) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid provider: %d", int(p))
	}
	return []byte(p.String()), nil
}
