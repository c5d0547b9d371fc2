package domain

// LocationKind says where a location's root path lives.
type LocationKind string

const (
	LocationLocal     LocationKind = "local"
	LocationRemote    LocationKind = "remote"
	LocationRemovable LocationKind = "removable"
)

// Location is an addressable root path on a machine or drive.
type Location struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Kind      LocationKind `json:"kind" enum:"local,remote,removable"`
	Path      string       `json:"path"`
	Label     *string      `json:"label,omitempty"`
	Available bool         `json:"available"`
	CreatedAt string       `json:"created_at" format:"date-time"`
}

type IntentStatus string

const (
	IntentIdle         IntentStatus = "idle"
	IntentScanning     IntentStatus = "scanning"
	IntentTransferring IntentStatus = "transferring"
	IntentComplete     IntentStatus = "complete"
	IntentNeedsReview  IntentStatus = "needs_review"
)

type IntentKind string

const (
	IntentOneShot IntentKind = "one_shot"
	IntentSync    IntentKind = "sync"
)

// Intent is a declared source → destination(s) transfer request.
type Intent struct {
	ID              string       `json:"id"`
	Name            *string      `json:"name,omitempty"`
	SourceID        string       `json:"source_id"`
	DestinationIDs  []string     `json:"destination_ids"`
	Status          IntentStatus `json:"status" enum:"idle,scanning,transferring,complete,needs_review"`
	Kind            IntentKind   `json:"kind" enum:"one_shot,sync"`
	Priority        int          `json:"priority"`
	TotalFiles      int64        `json:"total_files"`
	TotalBytes      int64        `json:"total_bytes"`
	CompletedFiles  int64        `json:"completed_files"`
	CompletedBytes  int64        `json:"completed_bytes"`
	IncludePatterns []string     `json:"include_patterns,omitempty"`
	ExcludePatterns []string     `json:"exclude_patterns,omitempty"`
	CreatedAt       string       `json:"created_at" format:"date-time"`
	UpdatedAt       string       `json:"updated_at" format:"date-time"`
}

type JobStatus string

const (
	JobPending      JobStatus = "pending"
	JobTransferring JobStatus = "transferring"
	JobComplete     JobStatus = "complete"
	JobFailed       JobStatus = "failed"
	JobNeedsReview  JobStatus = "needs_review"
	JobSkipped      JobStatus = "skipped"
)

// TransferJob is one concrete unit of work: one file, one destination.
type TransferJob struct {
	ID               string    `json:"id"`
	IntentID         string    `json:"intent_id"`
	SourcePath       string    `json:"source_path"`
	DestPath         string    `json:"dest_path"`
	DestinationID    string    `json:"destination_id"`
	Size             int64     `json:"size"`
	BytesTransferred int64     `json:"bytes_transferred"`
	Status           JobStatus `json:"status" enum:"pending,transferring,complete,failed,needs_review,skipped"`
	Attempts         int       `json:"attempts"`
	MaxAttempts      int       `json:"max_attempts"`
	LastError        *string   `json:"last_error,omitempty"`
	ErrorKind        *string   `json:"error_kind,omitempty"`
	SourceHash       *string   `json:"source_hash,omitempty"`
	DestHash         *string   `json:"dest_hash,omitempty"`
	StartedAt        *string   `json:"started_at,omitempty" format:"date-time"`
	CompletedAt      *string   `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt        string    `json:"created_at" format:"date-time"`
}

// ErrorKind is the closed set of copy failure classifications.
// Kinds reach the review queue, so no free-form strings.
type ErrorKind string

const (
	ErrSourceMissing    ErrorKind = "source_missing"
	ErrPermissionDenied ErrorKind = "permission_denied"
	ErrDiskFull         ErrorKind = "disk_full"
	ErrIO               ErrorKind = "io_error"
	ErrHashMismatch     ErrorKind = "hash_mismatch"
	ErrInternal         ErrorKind = "internal"
)

// Retryable reports whether a failure of this kind is eligible for
// automatic re-attempts. Only transient I/O qualifies.
func (k ErrorKind) Retryable() bool {
	return k == ErrIO
}

// Resolution option strings offered on review items.
const (
	ResolutionRetry  = "retry"
	ResolutionSkip   = "skip"
	ResolutionAccept = "accept"
	ResolutionRescan = "rescan"
)

// ResolutionOptions returns the ordered option list a review item offers
// for the given error kind.
func ResolutionOptions(kind ErrorKind) []string {
	switch kind {
	case ErrSourceMissing:
		return []string{ResolutionSkip, ResolutionRescan}
	case ErrPermissionDenied, ErrDiskFull, ErrIO:
		return []string{ResolutionRetry, ResolutionSkip}
	case ErrHashMismatch:
		return []string{ResolutionRetry, ResolutionSkip, ResolutionAccept}
	default:
		return []string{ResolutionSkip}
	}
}

// ReviewItem is an error that needs human attention.
type ReviewItem struct {
	ID             string    `json:"id"`
	JobID          string    `json:"job_id"`
	IntentID       string    `json:"intent_id"`
	ErrorKind      ErrorKind `json:"error_kind"`
	ErrorMessage   string    `json:"error_message"`
	SourcePath     string    `json:"source_path"`
	DestPath       string    `json:"dest_path"`
	Options        []string  `json:"options"`
	Resolution     *string   `json:"resolution,omitempty"`
	CreatedAt      string    `json:"created_at" format:"date-time"`
	ResolvedAt     *string   `json:"resolved_at,omitempty" format:"date-time"`
	SourceSize     *int64    `json:"source_size,omitempty"`
	SourceHash     *string   `json:"source_hash,omitempty"`
	SourceModified *string   `json:"source_modified,omitempty" format:"date-time"`
	DestSize       *int64    `json:"dest_size,omitempty"`
	DestHash       *string   `json:"dest_hash,omitempty"`
	DestModified   *string   `json:"dest_modified,omitempty" format:"date-time"`
}

// FileRecord is one row in the content ledger: every hash Ferry has
// verified, the basis for dedup and change detection.
type FileRecord struct {
	Hash      string `json:"hash"`
	Size      int64  `json:"size"`
	FirstSeen string `json:"first_seen" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	IntentID   string `json:"intent_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
