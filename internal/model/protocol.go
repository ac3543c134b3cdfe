// Package model holds the wire-level and in-memory data types shared by
// the download engine, the service and the client: protocols, remote
// files and download jobs (spec §3, §6).
package model

import "strings"

// Protocol identifies the remote store a Downloader talks to.
type Protocol string

const (
	ProtocolFTP         Protocol = "ftp"
	ProtocolFTPS        Protocol = "ftps"
	ProtocolHTTP        Protocol = "http"
	ProtocolHTTPS       Protocol = "https"
	ProtocolDirectFTP   Protocol = "directftp"
	ProtocolDirectFTPS  Protocol = "directftps"
	ProtocolDirectHTTP  Protocol = "directhttp"
	ProtocolDirectHTTPS Protocol = "directhttps"
	ProtocolLocal       Protocol = "local"
	ProtocolRsync        Protocol = "rsync"
	ProtocolIrods        Protocol = "irods"
	ProtocolSFTP         Protocol = "sftp"
)

// Valid reports whether p is one of the known protocols.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolFTP, ProtocolFTPS, ProtocolHTTP, ProtocolHTTPS,
		ProtocolDirectFTP, ProtocolDirectFTPS, ProtocolDirectHTTP, ProtocolDirectHTTPS,
		ProtocolLocal, ProtocolRsync, ProtocolIrods, ProtocolSFTP:
		return true
	}
	return false
}

// IsDirect reports whether p is a "direct" variant (caller supplies exact
// file names; listing degrades to a metadata probe).
func (p Protocol) IsDirect() bool {
	return strings.HasPrefix(string(p), "direct")
}

// OperationKind selects which handler a DownloadJob is routed to.
type OperationKind string

const (
	OpList     OperationKind = "LIST"
	OpDownload OperationKind = "DOWNLOAD"
	OpProcess  OperationKind = "PROCESS"
)

// HTTPMethod is the method used for HTTP(S)/direct-HTTP(S) transfers.
type HTTPMethod string

const (
	MethodGET  HTTPMethod = "GET"
	MethodPOST HTTPMethod = "POST"
)

// SSHNewHostPolicy controls how the SFTP downloader treats a host key it
// has not seen before (spec §4.1 table).
type SSHNewHostPolicy string

const (
	SSHNewHostReject SSHNewHostPolicy = "reject"
	SSHNewHostAccept SSHNewHostPolicy = "accept"
	SSHNewHostAdd    SSHNewHostPolicy = "add"
)
