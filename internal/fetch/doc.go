// Package fetch provides the HTTP and SFTP clients every network
// operation in webget goes through.
//
// # HTTP
//
// Client wraps net/http with the request policy the crawl and transfer
// engines share: a standing User-Agent, optional extra headers and a
// session cookie injected on every request, an optional SOCKS5 proxy,
// and a redirect cap.
//
// Page fetches (GetPage) negotiate gzip, deflate, and brotli encodings,
// decode transparently, and cap the body size. Transfer fetches (Do)
// request identity encoding so byte offsets in Range requests always
// refer to the bytes on the wire, and they stream the response instead
// of buffering it.
//
// # SFTP
//
// DialSFTP opens an SFTP session over SSH with password or private key
// authentication and known_hosts host key verification. Remote files
// open as seekable readers, which backs resume for sftp:// transfers.
package fetch
