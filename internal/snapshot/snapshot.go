// Package snapshot exports the full contact table as a JSON document to a
// local directory or an S3-compatible bucket.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/idrecon/internal/contact"
)

// keyTimeFormat renders the export time in snapshot keys.
const keyTimeFormat = "20060102T150405Z"

// Lister is the read side of contact.Store used for exports.
type Lister interface {
	ListContacts(ctx context.Context, includeDeleted bool) ([]contact.Contact, error)
}

// Sink persists one encoded snapshot under key and reports where it went.
type Sink interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// Document is the exported payload.
type Document struct {
	ExportedAt time.Time         `json:"exportedAt"`
	Count      int               `json:"count"`
	Contacts   []contact.Contact `json:"contacts"`
}

// Result describes a completed export.
type Result struct {
	Key      string
	Location string
	Count    int
}

// Exporter writes snapshots of Store to Sink.
type Exporter struct {
	Store Lister
	Sink  Sink

	// Clock stamps the document and key. Defaults to time.Now.
	Clock func() time.Time
}

// Key returns the object key for a snapshot taken at t.
func Key(t time.Time) string {
	return "contacts-" + t.UTC().Format(keyTimeFormat) + ".json"
}

// Export reads every contact, soft-deleted ones included, and hands the
// encoded document to the sink.
func (e *Exporter) Export(ctx context.Context) (Result, error) {
	now := time.Now
	if e.Clock != nil {
		now = e.Clock
	}
	at := now().UTC()

	contacts, err := e.Store.ListContacts(ctx, true)
	if err != nil {
		return Result{}, contact.NewStoreUnavailableError("list contacts", err)
	}

	data, err := json.MarshalIndent(Document{
		ExportedAt: at,
		Count:      len(contacts),
		Contacts:   contacts,
	}, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode snapshot: %w", err)
	}

	key := Key(at)
	location, err := e.Sink.Put(ctx, key, data)
	if err != nil {
		return Result{}, fmt.Errorf("write snapshot %s: %w", key, err)
	}

	return Result{Key: key, Location: location, Count: len(contacts)}, nil
}
