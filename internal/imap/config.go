package imap

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/velomail/velo/backend/internal/models"
)

// Connection security levels.
const (
	SecurityTLS      = "tls"
	SecuritySTARTTLS = "starttls"
	SecurityNone     = "none"
)

const (
	defaultTLSPort   = 993
	defaultPlainPort = 143
)

// NormalizeSecurity maps a stored security setting onto one of the three supported levels.
// "ssl" means implicit TLS; anything unrecognised falls back to TLS.
func NormalizeSecurity(security string) string {
	switch strings.ToLower(strings.TrimSpace(security)) {
	case "ssl", SecurityTLS:
		return SecurityTLS
	case SecuritySTARTTLS:
		return SecuritySTARTTLS
	case SecurityNone:
		return SecurityNone
	default:
		return SecurityTLS
	}
}

// ConnConfig holds everything needed to open an authenticated session for one account.
type ConnConfig struct {
	AccountID string
	Host      string
	Port      int
	Security  string
	Username  string
	Password  string
}

// Address returns host:port.
func (c ConnConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// PasswordDecrypter opens stored account passwords.
type PasswordDecrypter interface {
	DecryptPassword(accountEmail string, sealed []byte) (string, error)
}

// ConnConfigForAccount resolves the connection parameters of an account. The username
// defaults to the account email and the port to the standard port of the security level.
func ConnConfigForAccount(account *models.Account, decrypter PasswordDecrypter) (ConnConfig, error) {
	if account == nil {
		return ConnConfig{}, fmt.Errorf("account is nil")
	}
	if account.IMAPHost == "" {
		return ConnConfig{}, fmt.Errorf("account %s has no IMAP host", account.ID)
	}

	password, err := decrypter.DecryptPassword(account.Email, account.EncryptedIMAPPassword)
	if err != nil {
		return ConnConfig{}, fmt.Errorf("failed to decrypt IMAP password: %w", err)
	}

	security := NormalizeSecurity(account.IMAPSecurity)

	port := account.IMAPPort
	if port <= 0 {
		port = defaultTLSPort
		if security != SecurityTLS {
			port = defaultPlainPort
		}
	}

	username := account.IMAPUsername
	if username == "" {
		username = account.Email
	}

	return ConnConfig{
		AccountID: account.ID,
		Host:      account.IMAPHost,
		Port:      port,
		Security:  security,
		Username:  username,
		Password:  password,
	}, nil
}
