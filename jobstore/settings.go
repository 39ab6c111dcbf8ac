package jobstore

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Environment variables read by Settings.ApplyEnvOverrides.
const (
	EnvProviderName     = "SCHEDULER_DB_PROVIDER"
	EnvConnectionString = "SCHEDULER_CONNECTION_STRING"
)

// Settings is the scheduler store section of a configuration file:
//
//	scheduler:
//	  db_provider_name: Npgsql
//	  connection_string: host=db user=quartz dbname=quartz
type Settings struct {
	ProviderName     string `json:"db_provider_name" mapstructure:"db_provider_name"`
	ConnectionString string `json:"connection_string" mapstructure:"connection_string"`
}

// Store is a validated store selection.
type Store struct {
	Provider         Provider
	Delegate         Delegate
	ConnectionString string
}

// ApplyEnvOverrides overwrites fields from the SCHEDULER_* environment
// variables that are set and non-empty.
func (s *Settings) ApplyEnvOverrides() {
	if v := os.Getenv(EnvProviderName); v != "" {
		s.ProviderName = v
	}
	if v := os.Getenv(EnvConnectionString); v != "" {
		s.ConnectionString = v
	}
}

// Validate checks both fields without resolving them.
func (s Settings) Validate() error {
	var errs []error
	if _, err := ParseProvider(s.ProviderName); err != nil {
		errs = append(errs, fmt.Errorf("db_provider_name: %w", err))
	}
	if strings.TrimSpace(s.ConnectionString) == "" {
		errs = append(errs, errors.New("connection_string: cannot be empty"))
	}
	return errors.Join(errs...)
}

// Resolve validates s and returns the selected store.
func (s Settings) Resolve() (Store, error) {
	if err := s.Validate(); err != nil {
		return Store{}, err
	}
	p, _ := ParseProvider(s.ProviderName)
	return Store{
		Provider:         p,
		Delegate:         p.Delegate(),
		ConnectionString: s.ConnectionString,
	}, nil
}

// String renders the store without the connection string, which usually
// carries credentials.
func (s Store) String() string {
	return fmt.Sprintf("%s (%s)", s.Provider, s.Delegate.Name)
}
