// Package credentials resolves the secrets a job needs: the remote API account
// and the database connection string.
package credentials

import (
	"errors"
	"fmt"
	"os"
)

// Environment variable names read by EnvProvider.
const (
	EnvUsername         = "GO_API_USERNAME"
	EnvPassword         = "GO_API_PASSWORD"
	EnvConnectionString = "DBCONNECTIONSTRINGPROD"
)

// ErrMissingCredential is returned when a required value is not set.
var ErrMissingCredential = errors.New("missing credential")

// Credentials are immutable for the duration of a run.
type Credentials struct {
	Username         string
	Password         string
	ConnectionString string
}

// Provider resolves credentials.
type Provider interface {
	Credentials() (Credentials, error)
}

// EnvProvider reads credentials from environment variables.
type EnvProvider struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(key string) (string, bool)
}

// Credentials returns the configured credentials. The username and connection
// string are required; an empty password is allowed.
func (p EnvProvider) Credentials() (Credentials, error) {
	lookup := p.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}

	c := Credentials{
		Username:         get(EnvUsername),
		Password:         get(EnvPassword),
		ConnectionString: get(EnvConnectionString),
	}
	if c.Username == "" {
		return Credentials{}, fmt.Errorf("%w: %s", ErrMissingCredential, EnvUsername)
	}
	if c.ConnectionString == "" {
		return Credentials{}, fmt.Errorf("%w: %s", ErrMissingCredential, EnvConnectionString)
	}
	return c, nil
}

// Static returns fixed credentials.
type Static Credentials

// Credentials implements Provider.
func (s Static) Credentials() (Credentials, error) {
	return Credentials(s), nil
}
