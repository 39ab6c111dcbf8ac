package jobstore

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		name     string
		want     Provider
		delegate string
	}{
		{"SQLite", SQLite, "SQLiteDelegate"},
		{"SQLite-Microsoft", SQLite, "SQLiteDelegate"},
		{"MySql", MySQL, "MySQLDelegate"},
		{"OracleODPManaged", Oracle, "OracleDelegate"},
		{"SQLServer", SQLServer, "SqlServerDelegate"},
		{"SQLServerMOT", SQLServer, "SqlServerDelegate"},
		{"Npgsql", PostgreSQL, "PostgreSQLDelegate"},
		{"Firebird", Firebird, "FirebirdDelegate"},
		{"npgsql", PostgreSQL, "PostgreSQLDelegate"},
		{"  MYSQL  ", MySQL, "MySQLDelegate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProvider(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.delegate, got.Delegate().Name)
		})
	}
}

func TestParseProviderUnknown(t *testing.T) {
	for _, name := range []string{"", "postgres", "MongoDB", "SQLite Microsoft"} {
		_, err := ParseProvider(name)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrUnknownProvider))

		var perr *UnknownProviderError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, name, perr.Name)
		assert.Contains(t, err.Error(), "accepted: "+strings.Join(AcceptedNames(), ", "))
	}
}

func TestAcceptedNamesCoverAliases(t *testing.T) {
	names := AcceptedNames()
	assert.Len(t, names, len(aliases))
	assert.IsIncreasing(t, names)
	for _, n := range names {
		_, err := ParseProvider(n)
		assert.NoError(t, err, n)
	}

	accepted := make(map[string]bool, len(names))
	for _, n := range names {
		accepted[strings.ToLower(n)] = true
	}
	for alias := range aliases {
		assert.True(t, accepted[alias], "alias %q missing from AcceptedNames", alias)
	}
	for p := SQLite; p < providerCount; p++ {
		assert.Contains(t, names, p.String(), "canonical name must be accepted")
	}
}

func TestEveryProviderHasDelegate(t *testing.T) {
	drivers := make(map[string]bool)
	for p := SQLite; p < providerCount; p++ {
		d := p.Delegate()
		assert.NotEmpty(t, d.Name, p.String())
		assert.NotEmpty(t, d.Driver, p.String())
		assert.False(t, drivers[d.Driver], "driver %s bound twice", d.Driver)
		drivers[d.Driver] = true

		parsed, err := ParseProvider(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed, "canonical name must round-trip")
	}
}

func TestInvalidProvider(t *testing.T) {
	p := Provider(42)
	assert.False(t, p.Valid())
	assert.Equal(t, "Provider(42)", p.String())
	assert.Equal(t, Delegate{}, p.Delegate())
	_, err := p.MarshalText()
	assert.Error(t, err)
}

func TestProviderText(t *testing.T) {
	var p Provider
	require.NoError(t, p.UnmarshalText([]byte("firebird")))
	assert.Equal(t, Firebird, p)

	text, err := p.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Firebird", string(text))

	assert.ErrorIs(t, p.UnmarshalText([]byte("db2")), ErrUnknownProvider)
	assert.Equal(t, Firebird, p, "failed unmarshal leaves the value untouched")
}

func TestSettingsResolve(t *testing.T) {
	s := Settings{ProviderName: "Npgsql", ConnectionString: "host=db user=quartz password=secret"}
	store, err := s.Resolve()
	require.NoError(t, err)

	assert.Equal(t, PostgreSQL, store.Provider)
	assert.Equal(t, "pgx", store.Delegate.Driver)
	assert.Equal(t, "Npgsql (PostgreSQLDelegate)", store.String())
	assert.NotContains(t, store.String(), "secret")
}

func TestSettingsValidate(t *testing.T) {
	err := Settings{ProviderName: "Cassandra"}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.Contains(t, err.Error(), "db_provider_name")
	assert.Contains(t, err.Error(), "connection_string: cannot be empty")

	_, err = Settings{ProviderName: "SQLite", ConnectionString: "   "}.Resolve()
	assert.EqualError(t, err, "connection_string: cannot be empty")
}

func TestSettingsEnvOverrides(t *testing.T) {
	t.Setenv(EnvProviderName, "SQLServerMOT")
	t.Setenv(EnvConnectionString, "")

	s := Settings{ProviderName: "SQLite", ConnectionString: "file:jobs.db"}
	s.ApplyEnvOverrides()

	assert.Equal(t, "SQLServerMOT", s.ProviderName)
	assert.Equal(t, "file:jobs.db", s.ConnectionString, "empty variables are ignored")

	store, err := s.Resolve()
	require.NoError(t, err)
	assert.Equal(t, SQLServer, store.Provider)
}
