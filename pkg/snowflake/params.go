package snowflake

import (
	"crypto/rsa"
	"time"

	sf "github.com/snowflakedb/gosnowflake"
)

// Params holds the connection parameters of a session. Exactly one of
// Password and PrivateKey must be set.
type Params struct {
	Account    string
	User       string
	Password   string
	PrivateKey *rsa.PrivateKey

	// Optional login defaults
	Warehouse string
	Role      string
	Database  string
	Schema    string

	LoginTimeout time.Duration
	Application  string
}

// Validate checks that the parameters can be used to log in
func (p Params) Validate() error {
	if p.Account == "" {
		return newError(KindConfig, nil, "account is required")
	}
	if p.User == "" {
		return newError(KindConfig, nil, "user is required")
	}
	if p.Password == "" && p.PrivateKey == nil {
		return newError(KindConfig, nil, "either a password or a private key is required")
	}
	if p.Password != "" && p.PrivateKey != nil {
		return newError(KindConfig, nil, "password and private key are mutually exclusive")
	}
	return nil
}

func (p Params) dsn() (string, error) {
	cfg := &sf.Config{
		Account:      p.Account,
		User:         p.User,
		Warehouse:    p.Warehouse,
		Role:         p.Role,
		Database:     p.Database,
		Schema:       p.Schema,
		LoginTimeout: p.LoginTimeout,
		Application:  p.Application,
	}
	if p.PrivateKey != nil {
		cfg.Authenticator = sf.AuthTypeJwt
		cfg.PrivateKey = p.PrivateKey
	} else {
		cfg.Password = p.Password
	}

	dsn, err := sf.DSN(cfg)
	if err != nil {
		return "", newError(KindConfig, err, "failed to create DSN")
	}
	return dsn, nil
}
