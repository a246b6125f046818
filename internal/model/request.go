package model

// DownloadRequest describes a single transfer: the source URL, where to
// write it, and how to perform the attempt. The pipeline constructs one
// request per downloadable target; the transfer engine consumes it once
// per attempt.
type DownloadRequest struct {
	// URL is the resource to download.
	URL string `json:"url"`

	// DestinationPath is the local file path to write to.
	DestinationPath string `json:"destination_path"`

	// ResumeFromByte is the byte offset to resume from. Zero means a
	// fresh transfer. The transfer engine derives this from the size of
	// an existing partial file before each attempt.
	ResumeFromByte int64 `json:"resume_from_byte,omitempty"`

	// Headers are extra HTTP headers to send with the request.
	// Keys and values must be free of CR/LF; the security validator
	// rejects requests that violate this.
	Headers map[string]string `json:"headers,omitempty"`

	// Checksum is an optional expected digest in "algo:hex" form
	// (sha256 or blake3). When set, the completed file is verified
	// and a mismatch fails the transfer.
	Checksum string `json:"checksum,omitempty"`

	// SSHOptions carries credentials for sftp:// transfers. Nil for HTTP.
	// Excluded from JSON so credentials never reach reports or history.
	SSHOptions *SSHOptions `json:"-"`
}

// SSHOptions carries authentication settings for SFTP transfers.
type SSHOptions struct {
	// User is the SSH login name.
	User string

	// Password authenticates with a password when non-empty.
	Password string

	// PrivateKeyPath points to a PEM-encoded private key file.
	// Takes precedence over Password when both are set.
	PrivateKeyPath string

	// KnownHostsPath points to an OpenSSH known_hosts file used for host
	// key verification. Required unless InsecureIgnoreHostKey is set.
	KnownHostsPath string

	// InsecureIgnoreHostKey disables host key verification. Connections
	// become vulnerable to man-in-the-middle attacks; this must be an
	// explicit opt-in from the user.
	InsecureIgnoreHostKey bool

	// Port overrides the default SSH port 22 when non-zero and the URL
	// itself carries no port.
	Port int
}
