package models

import (
	"time"
)

// Account is a remote mailbox mirrored by Velo.
type Account struct {
	ID                    string    `json:"id"`
	Email                 string    `json:"email"`
	IMAPHost              string    `json:"imap_host"`
	IMAPPort              int       `json:"imap_port"`
	IMAPSecurity          string    `json:"imap_security"`
	IMAPUsername          string    `json:"imap_username"`
	EncryptedIMAPPassword []byte    `json:"-"`
	SyncToken             string    `json:"sync_token,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// AccountRequest is the payload for saving account connection settings.
type AccountRequest struct {
	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPSecurity string `json:"imap_security"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"imap_password"`
}

// AccountResponse never includes the password.
type AccountResponse struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	IMAPHost        string `json:"imap_host"`
	IMAPPort        int    `json:"imap_port"`
	IMAPSecurity    string `json:"imap_security"`
	IMAPUsername    string `json:"imap_username"`
	IMAPPasswordSet bool   `json:"imap_password_set"`
	SyncToken       string `json:"sync_token,omitempty"`
}
