package fetch

import "errors"

var (
	// ErrBodyTooLarge is returned by GetPage when the response body
	// exceeds the configured cap.
	ErrBodyTooLarge = errors.New("response body exceeds size limit")

	// ErrInvalidProxy is returned when the SOCKS5 proxy address is not
	// in "host:port" form.
	ErrInvalidProxy = errors.New("invalid SOCKS5 proxy address")

	// ErrSSHUserRequired is returned when an SFTP URL carries no user
	// and none is configured.
	ErrSSHUserRequired = errors.New("SFTP transfer requires a user name")

	// ErrSSHAuthRequired is returned when neither a password nor a
	// private key is configured for an SFTP transfer.
	ErrSSHAuthRequired = errors.New("SFTP transfer requires a password or private key")
)
