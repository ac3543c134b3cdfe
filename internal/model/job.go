package model

// TraceContext carries the optional distributed-tracing identifiers a job
// was published with (spec §6). Export of spans themselves is an external
// collaborator; the core only threads the ids through.
type TraceContext struct {
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// ProxyConfig is the optional HTTP(S)/FTP proxy a downloader should use.
type ProxyConfig struct {
	Proxy     string `json:"proxy"`
	ProxyAuth string `json:"proxy_auth,omitempty"`
}

// HTTPParse describes how an HTML listing page should be parsed into
// directory and file rows (spec §4.1 table). Indices are capture-group
// numbers (1-based) within the corresponding regex; 0 means "not present".
type HTTPParse struct {
	DirLine        string `json:"dir_line,omitempty"`
	FileLine       string `json:"file_line,omitempty"`
	DirName        int    `json:"dir_name,omitempty"`
	DirDate        int    `json:"dir_date,omitempty"`
	FileName       int    `json:"file_name,omitempty"`
	FileDate       int    `json:"file_date,omitempty"`
	FileDateFormat string `json:"file_date_format,omitempty"`
	FileSize       int    `json:"file_size,omitempty"`
}

// RemoteSource describes where and how to reach the remote store for one
// job: protocol, server, credentials, the files to act on (direct
// protocols) or the patterns to match (list operations).
type RemoteSource struct {
	Protocol   Protocol    `json:"protocol"`
	Server     string      `json:"server"`
	RemoteDir  string      `json:"remote_dir"`
	SaveAs     string      `json:"save_as,omitempty"`
	Files      []RemoteFile `json:"files,omitempty"`
	Param      map[string]string `json:"param,omitempty"`
	Matches    []string    `json:"matches,omitempty"`
	HTTPParse  *HTTPParse  `json:"http_parse,omitempty"`
	Credentials string     `json:"credentials,omitempty"`

	// SSHNewHostPolicy and KnownHostsFile apply to sftp only.
	SSHNewHostPolicy SSHNewHostPolicy `json:"ssh_new_host_policy,omitempty"`
	KnownHostsFile   string           `json:"known_hosts_file,omitempty"`
}

// DownloadJob is the payload of an Operation message (spec §6).
type DownloadJob struct {
	Bank            string       `json:"bank"`
	Session         string       `json:"session"`
	LocalDir        string       `json:"local_dir"`
	TimeoutDownload int          `json:"timeout_download,omitempty"`
	RemoteFile      RemoteSource `json:"remote_file"`
	Proxy           *ProxyConfig `json:"proxy,omitempty"`
	HTTPMethod      HTTPMethod   `json:"http_method,omitempty"`
	Options         map[string]string `json:"options,omitempty"`
}

// Operation is the full message body published to the biomajdownload
// queue (spec §6).
type Operation struct {
	Kind     OperationKind `json:"kind"`
	Download DownloadJob   `json:"download"`
	Trace    *TraceContext `json:"trace,omitempty"`
}

// BoolOption reads a boolean-shaped option from Options, defaulting to
// def when absent or unparseable.
func (j *DownloadJob) BoolOption(name string, def bool) bool {
	v, ok := j.Options[name]
	if !ok {
		return def
	}
	switch v {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return def
	}
}
