/*
Package biomajdownload is a protocol-polymorphic bulk-download service for
biological data banks.

biomaj-download provides queue-driven mirroring of remote data banks with
features including:
  - A common downloader interface across ftp/ftps/sftp/http/https/rsync/irods/local
  - Listing pattern matching and a copy-or-download decider against a local cache
  - Session-tracked progress and error counters in a shared key/value store
  - A configurable retry policy grammar for transient network failures
  - A rate-limited client with remote (queue) and local (worker pool) modes

The main packages are:

	github.com/biomaj/biomaj-download/internal/model       - wire-level data types (RemoteFile, DownloadJob, Operation)
	github.com/biomaj/biomaj-download/internal/retry       - stop/wait policy composition and grammar parser
	github.com/biomaj/biomaj-download/internal/download    - the downloader interface, matcher, copy decider and per-protocol implementations
	github.com/biomaj/biomaj-download/internal/queue       - the biomajdownload AMQP queue wrapper
	github.com/biomaj/biomaj-download/internal/session     - the Redis-backed session store
	github.com/biomaj/biomaj-download/internal/service     - the download service mediating queue and engine
	github.com/biomaj/biomaj-download/internal/client      - the download client's batching and polling layer
	github.com/biomaj/biomaj-download/internal/supervisor  - health endpoint, metrics and self-registration
	github.com/biomaj/biomaj-download/cmd/biomaj-download-worker - the queue consumer process
	github.com/biomaj/biomaj-download/cmd/biomaj-download-client - a manual client front-end
*/
package biomajdownload
