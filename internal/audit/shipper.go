package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/lgu-records/issuance-registry/internal/config"
	"github.com/lgu-records/issuance-registry/internal/db/models"
	"github.com/lgu-records/issuance-registry/internal/safego"
	"github.com/lgu-records/issuance-registry/internal/telemetry"
)

// LogEntry is the wire shape of a shipped audit record
type LogEntry struct {
	ID            int64           `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	Action        string          `json:"action"`
	UserID        string          `json:"user_id"`
	AuditableType string          `json:"auditable_type"`
	AuditableID   int64           `json:"auditable_id"`
	IPAddress     string          `json:"ip_address,omitempty"`
	OldValues     json.RawMessage `json:"old_values,omitempty"`
	NewValues     json.RawMessage `json:"new_values,omitempty"`
}

// NewLogEntry converts a persisted audit row
func NewLogEntry(log *models.AuditLog) *LogEntry {
	entry := &LogEntry{
		ID:            log.ID,
		Timestamp:     log.CreatedAt,
		Action:        string(log.Action),
		UserID:        log.UserID,
		AuditableType: log.AuditableType,
		AuditableID:   log.AuditableID,
	}
	if log.IPAddress != nil {
		entry.IPAddress = *log.IPAddress
	}
	if log.OldValues.Valid {
		entry.OldValues = json.RawMessage(log.OldValues.JSONText)
	}
	if log.NewValues.Valid {
		entry.NewValues = json.RawMessage(log.NewValues.JSONText)
	}
	return entry
}

// Shipper defines the interface for audit log shipping
type Shipper interface {
	// Ship sends an audit log entry to the destination
	Ship(ctx context.Context, entry *LogEntry) error
	// Close cleans up any resources
	Close() error
}

// MultiShipper ships to multiple destinations
type MultiShipper struct {
	shippers []namedShipper
	mu       sync.RWMutex
}

type namedShipper struct {
	kind string
	Shipper
}

// NewMultiShipper creates a new multi-shipper from configs. Disabled entries
// are skipped.
func NewMultiShipper(configs []config.AuditShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var shipper Shipper
		var err error

		switch cfg.Type {
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for webhook shipper")
			}
			shipper = NewWebhookShipper(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("file config is required for file shipper")
			}
			shipper, err = NewFileShipper(cfg.File)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}

		if err != nil {
			ms.Close()
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}
		ms.shippers = append(ms.shippers, namedShipper{kind: cfg.Type, Shipper: shipper})
	}

	return ms, nil
}

// Len returns the number of active shippers
func (ms *MultiShipper) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.shippers)
}

// Ship sends an entry to every shipper. A failing sink does not stop the
// others; the last error is returned.
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var lastErr error
	for _, s := range ms.shippers {
		if err := s.Ship(ctx, entry); err != nil {
			lastErr = err
			telemetry.AuditShipFailuresTotal.WithLabelValues(s.kind).Inc()
			slog.Warn("audit shipper error", "sink", s.kind, "audit_id", entry.ID, "error", err)
		}
	}
	return lastErr
}

// Close closes all shippers
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var lastErr error
	for _, s := range ms.shippers {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// WebhookShipper POSTs each entry as JSON
type WebhookShipper struct {
	cfg    *config.AuditWebhookConfig
	client *http.Client
}

// NewWebhookShipper creates a new webhook shipper. A zero timeout means 10s.
func NewWebhookShipper(cfg *config.AuditWebhookConfig) *WebhookShipper {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookShipper{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Ship sends an entry to the webhook
func (ws *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no per-shipper resources
func (ws *WebhookShipper) Close() error { return nil }

// FileShipper appends entries to a JSON-lines file
type FileShipper struct {
	file *os.File
	mu   sync.Mutex
}

// NewFileShipper opens (or creates) the target file for appending
func NewFileShipper(cfg *config.AuditFileConfig) (*FileShipper, error) {
	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileShipper{file: file}, nil
}

// Ship writes an entry as one line
func (fs *FileShipper) Ship(_ context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Close closes the file
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}

// Dispatcher forwards committed entries to a Shipper on a background worker
// so request latency never depends on sink availability.
type Dispatcher struct {
	shipper Shipper
	queue   chan *LogEntry
	wg      sync.WaitGroup
	once    sync.Once
	timeout time.Duration
}

// NewDispatcher starts a worker draining a queue of bufferSize entries
func NewDispatcher(shipper Shipper, bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	d := &Dispatcher{
		shipper: shipper,
		queue:   make(chan *LogEntry, bufferSize),
		timeout: 15 * time.Second,
	}
	safego.GoGroup(&d.wg, "audit-dispatcher", d.run)
	return d
}

func (d *Dispatcher) run() {
	for entry := range d.queue {
		d.ship(entry)
	}
}

// ship delivers one entry. A panicking sink loses that entry only; the
// worker keeps draining the queue.
func (d *Dispatcher) ship(entry *LogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			telemetry.AuditShipFailuresTotal.WithLabelValues("panic").Inc()
			slog.Error("audit shipper panicked", "audit_id", entry.ID, "panic", r)
		}
	}()
	_ = d.shipper.Ship(ctx, entry)
}

// Enqueue hands entries to the worker. When the queue is full the entry is
// dropped and counted; the audit row in the database is unaffected.
func (d *Dispatcher) Enqueue(logs ...*models.AuditLog) {
	for _, log := range logs {
		select {
		case d.queue <- NewLogEntry(log):
		default:
			telemetry.AuditShipFailuresTotal.WithLabelValues("queue").Inc()
			slog.Warn("audit shipping queue full, dropping entry", "audit_id", log.ID)
		}
	}
}

// Close stops accepting entries, drains the queue and closes the shipper
func (d *Dispatcher) Close() error {
	var err error
	d.once.Do(func() {
		close(d.queue)
		d.wg.Wait()
		err = d.shipper.Close()
	})
	return err
}
