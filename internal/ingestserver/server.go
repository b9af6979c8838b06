// Package ingestserver implements the ingestion daemon: a Unix domain
// socket listener that accepts newline-delimited JSON CapturePayload
// requests and funnels them, one at a time, through the single-owner
// process(payload) critical section described by the specification.
package ingestserver

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ehl-ingestd/internal/chunker"
	"github.com/54b3r/ehl-ingestd/internal/dedup"
	"github.com/54b3r/ehl-ingestd/internal/logging"
	"github.com/54b3r/ehl-ingestd/internal/ocrdiff"
	"github.com/54b3r/ehl-ingestd/internal/storage"
	"github.com/54b3r/ehl-ingestd/internal/urlnorm"
	"github.com/54b3r/ehl-ingestd/internal/wire"
)

// inactivityTimeout bounds how long a connection may go without sending a
// complete request line before the server closes it.
const inactivityTimeout = 5 * time.Second

// Config controls the server's socket path and dependent component sizing.
type Config struct {
	SocketPath    string
	ChunkerConfig chunker.Config
}

// Server owns the Unix socket listener, the single-owner process(payload)
// critical section, and the storage + dedup cache it mutates.
type Server struct {
	cfg   Config
	store *storage.Store
	cache *dedup.Cache
	log   *slog.Logger

	mu       sync.Mutex // serialises process(payload); the correctness model, not a perf optimisation
	listener net.Listener

	connSeq uint64 // atomically incremented per accepted connection, for log correlation

	metrics *ingestdMetrics
}

// New constructs a Server over an already-open Store and Cache.
func New(cfg Config, store *storage.Store, cache *dedup.Cache, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, store: store, cache: cache, log: log}
}

// WithMetrics registers Prometheus metrics for this Server against reg and
// returns the Server for chaining.
func (s *Server) WithMetrics(reg prometheus.Registerer) *Server {
	s.metrics = newIngestdMetrics(reg)
	return s
}

// Start opens the Unix domain socket and accepts connections until ctx is
// cancelled, at which point the listener is closed and Start returns.
func (s *Server) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.cfg.SocketPath); err != nil {
		return fmt.Errorf("ingestserver: failed to clear stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("ingestserver: listen failed: %w", err)
	}
	s.listener = ln
	s.log.Info("ingestserver: listening", slog.String("socket", s.cfg.SocketPath))

	var wg sync.WaitGroup
	acceptErr := make(chan error, 1)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				acceptErr <- err
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.handleConn(conn)
			}()
		}
	}()

	select {
	case <-ctx.Done():
		ln.Close()
		wg.Wait()
		return nil
	case err := <-acceptErr:
		if ctx.Err() != nil {
			wg.Wait()
			return nil
		}
		return fmt.Errorf("ingestserver: accept failed: %w", err)
	}
}

// handleConn services one connection: read a request line, process it,
// write the response line, repeat until EOF, error, or inactivity timeout.
// Every log line emitted while servicing this connection carries a conn_id
// attribute so concurrent connections can be told apart in the log stream.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	connID := atomic.AddUint64(&s.connSeq, 1)
	ctx := logging.WithConnID(logging.WithLogger(context.Background(), s.log), connID)
	log := logging.FromContext(ctx)

	log.Debug("ingestserver: connection accepted", slog.String("remote", conn.RemoteAddr().String()))
	defer log.Debug("ingestserver: connection closed")

	reader := bufio.NewReader(conn)

	for {
		conn.SetDeadline(time.Now().Add(inactivityTimeout))

		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var payload wire.CapturePayload
		if jsonErr := json.Unmarshal(line, &payload); jsonErr != nil {
			log.Warn("ingestserver: malformed request", slog.Any("error", jsonErr))
			s.writeResponse(conn, wire.Err(fmt.Sprintf("malformed request: %v", jsonErr)))
			continue
		}

		resp := s.process(payload)
		if !s.writeResponse(conn, resp) {
			return
		}
	}
}

func (s *Server) writeResponse(conn net.Conn, resp wire.IngestionResponse) bool {
	data, err := json.Marshal(resp)
	if err != nil {
		return false
	}
	data = append(data, '\n')
	conn.SetWriteDeadline(time.Now().Add(inactivityTimeout))
	_, err = conn.Write(data)
	return err == nil
}

// process implements the specification's process(payload) algorithm. It is
// the single critical section: every connection's requests funnel through
// this one mutex.
func (s *Server) process(payload wire.CapturePayload) (resp wire.IngestionResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		s.metrics.observeRequest(string(resp.Action), time.Since(start).Seconds())
	}()

	content := strings.TrimSpace(payload.Content)
	if content == "" {
		return wire.Err("content is empty")
	}

	sourcePath := urlnorm.Normalise(payload.Source, payload.URL)
	contentHash := sha256Hex(content)

	outcome, cachedDocID := s.cache.Lookup(sourcePath, contentHash)
	s.metrics.observeDedup(dedupOutcomeLabel(outcome))
	if outcome == dedup.Duplicate {
		return wire.OK(wire.ActionSkipped, cachedDocID, 0)
	}

	ctx := context.Background()
	meta := storage.DocMeta{
		URL:     payload.URL,
		Title:   payload.Title,
		Author:  payload.Author,
		Channel: payload.Channel,
		AppName: payload.AppName,
		BundleID: payload.BundleID,
	}
	if payload.Source == "ocr" || payload.Source == "accessibility" {
		meta.SourceTypeClass = storage.ClassAccessibility
	} else {
		meta.SourceTypeClass = storage.ClassCapture
	}

	existing, err := s.store.GetDocumentBySourcePath(ctx, sourcePath)
	if err != nil {
		return wire.Err(fmt.Sprintf("storage error: %v", err))
	}

	if existing == nil {
		texts := chunker.Chunk(content, s.cfg.ChunkerConfig)
		doc, err := s.store.CreateDocument(ctx, payload.Source, sourcePath, contentHash, meta, texts)
		if err != nil {
			return wire.Err(fmt.Sprintf("storage error: %v", err))
		}
		s.cache.Put(sourcePath, contentHash, doc.ID)
		s.metrics.addChunksWritten(doc.ChunkCount)
		return wire.OK(wire.ActionCreated, doc.ID, doc.ChunkCount)
	}

	if existing.ContentHash == contentHash {
		s.cache.Put(sourcePath, contentHash, existing.ID)
		return wire.OK(wire.ActionSkipped, existing.ID, existing.ChunkCount)
	}

	if payload.Source == "ocr" {
		return s.processOcrAppend(ctx, existing, meta, content)
	}

	texts := chunker.Chunk(content, s.cfg.ChunkerConfig)
	chunkCount, err := s.store.ReplaceDocument(ctx, existing.ID, payload.Source, contentHash, meta, texts)
	if err != nil {
		return wire.Err(fmt.Sprintf("storage error: %v", err))
	}
	s.cache.Put(sourcePath, contentHash, existing.ID)
	s.metrics.addChunksWritten(chunkCount)
	return wire.OK(wire.ActionUpdated, existing.ID, chunkCount)
}

// processOcrAppend implements the incremental-append branch.
func (s *Server) processOcrAppend(ctx context.Context, existing *storage.Document, meta storage.DocMeta, incoming string) wire.IngestionResponse {
	liveTexts, err := s.store.LiveChunkTexts(ctx, existing.ID)
	if err != nil {
		return wire.Err(fmt.Sprintf("storage error: %v", err))
	}
	existingText := joinTexts(liveTexts)

	newText := ocrdiff.ExtractNew(existingText, incoming)
	if !ocrdiff.Significant(newText) {
		return wire.OKWithMessage(wire.ActionSkipped, existing.ID, existing.ChunkCount, "No significant new content")
	}

	fullText := existingText + "\n" + newText
	fullHash := sha256Hex(fullText)

	newChunkTexts := chunker.Chunk(newText, s.cfg.ChunkerConfig)
	chunkCount, err := s.store.AppendChunks(ctx, existing.ID, "ocr", fullHash, meta, newChunkTexts)
	if err != nil {
		return wire.Err(fmt.Sprintf("storage error: %v", err))
	}
	s.metrics.addChunksWritten(len(newChunkTexts))
	return wire.OK(wire.ActionUpdated, existing.ID, chunkCount)
}

func joinTexts(texts []string) string {
	return strings.Join(texts, "\n")
}

// dedupOutcomeLabel converts a dedup.Outcome into its Prometheus label value.
func dedupOutcomeLabel(o dedup.Outcome) string {
	switch o {
	case dedup.Duplicate:
		return "duplicate"
	case dedup.Changed:
		return "changed"
	default:
		return "new"
	}
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)
}
