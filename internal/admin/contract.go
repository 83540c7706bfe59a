// Package admin documents the HTTP handler seam a future admin server would
// implement against the rest of this module, without implementing that
// server. It is grounded on fl-server/src/main.rs's route table
// (health check, sign-in, create-flist, poll-job, list-flists,
// serve-flist-files) and on rclone's own split between transport (its
// github.com/go-chi/chi-fronted lib/http servers) and the handlers that sit
// behind it: the interfaces below are the Go shape those operations other
// than the health check would take, so wiring an actual chi.Router is adding a
// transport layer rather than inventing a new contract.
//
// No net/http server lives here (spec.md's Non-goals exclude the HTTP admin
// surface from this module's scope); this package exists so the seam is
// documented and the rest of the module (pkg/meta, pkg/flist, pkg/store) is
// already shaped to satisfy it.
package admin

import (
	"context"
	"io"
	"time"
)

// JobState mirrors the states fl-server reports for an in-flight flist
// build: accepted immediately, started once the conversion begins, then
// either done or failed asynchronously once the converter finishes.
type JobState string

const (
	JobAccepted JobState = "accepted"
	JobStarted  JobState = "started"
	JobDone     JobState = "done"
	JobFailed   JobState = "failed"
)

// CreateFlistRequest is the payload behind fl-server's `POST /v1/api/fl`:
// a source image reference plus the destination store routes to upload
// blocks into.
type CreateFlistRequest struct {
	Image     string   // e.g. "docker.io/library/alpine:latest"
	StoreURLs []string // route-spec grammar, see pkg/store.ParseRouteSpec
	Username  string   // registry credentials, if the image is private
	Password  string
}

// JobStatus is returned by both the immediate create-flist response and by
// polling `GET /v1/api/fl/:job_id`.
type JobStatus struct {
	ID          string
	State       JobState
	FlistPath   string // populated once State == JobDone
	Error       string // populated once State == JobFailed
	SubmittedAt time.Time
}

// FlistSummary is one entry of `GET /v1/api/fl`'s listing response.
type FlistSummary struct {
	Name      string
	Path      string
	SizeBytes int64
	Created   time.Time
}

// JobQueue is the seam `create_flist_handler`/`get_flist_state_handler`
// close over. An implementation would enqueue a cmd/docker2fl-equivalent
// conversion, track its JobStatus, and let callers poll it — the
// Mutex<HashMap<String, JobStatus>> in fl-server's AppState is the direct
// analogue of whatever backs Submit/Status here.
type JobQueue interface {
	// Submit enqueues req and returns a job ID immediately; the conversion
	// itself runs asynchronously.
	Submit(ctx context.Context, req CreateFlistRequest) (jobID string, err error)
	// Status reports the current JobStatus for a previously submitted job.
	Status(ctx context.Context, jobID string) (JobStatus, error)
}

// Catalog is the seam `list_flists_handler`/`serve_flists` close over:
// listing already-built artifacts and serving their bytes back out,
// backed by whatever directory or object store fl-server's `config.flist_dir`
// pointed at.
type Catalog interface {
	// List returns every artifact currently available.
	List(ctx context.Context) ([]FlistSummary, error)
	// Open returns a reader for the artifact at path, as named by a
	// FlistSummary.Path from List.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Authenticator is the seam `auth::authorize`/`auth::sign_in_handler`
// close over: verifying a bearer token on the create/poll routes, and
// issuing one from a sign-in request. The health-check and list/serve
// routes are unauthenticated in fl-server's route table and have no
// equivalent here.
type Authenticator interface {
	// SignIn exchanges credentials for a bearer token.
	SignIn(ctx context.Context, username, password string) (token string, err error)
	// Authorize validates a bearer token, returning an error if it is
	// missing, malformed, or expired.
	Authorize(ctx context.Context, token string) error
}
