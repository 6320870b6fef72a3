package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/gapeva/poolbot/internal/domain"
)

const (
	snapshotPollInterval = 2 * time.Second
	heartbeatInterval    = 30 * time.Second
	// streamBacklog is how many past snapshots a new client receives.
	streamBacklog = 100
	streamBatch   = 200
)

// streamStart resumes after Last-Event-ID when the client sends one that the
// store still knows, otherwise replays only the recent backlog.
func (s *Server) streamStart(r *http.Request) uint64 {
	if raw := r.Header.Get("Last-Event-ID"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil && id <= s.snapshots.CurrentIndex() {
			return id
		}
	}
	return s.snapshots.ReplayFrom(streamBacklog)
}

func (s *Server) handleEquityStream(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "snapshot store not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// comment heartbeat keeps proxies from dropping the connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(snapshotPollInterval)
	defer pollTicker.Stop()

	lastIndex := s.streamStart(r)
	send := func(records []domain.EquitySnapshotRecord) error {
		for _, record := range records {
			payload, err := json.Marshal(record.Snapshot)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: equity\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}
	// drain in bounded batches so a long gap never loads the whole log
	sendSnapshots := func() error {
		for {
			records, err := s.snapshots.SnapshotsAfter(lastIndex, streamBatch)
			if err != nil {
				return err
			}
			if err := send(records); err != nil {
				return err
			}
			if len(records) < streamBatch || r.Context().Err() != nil {
				return nil
			}
		}
	}

	if err := sendSnapshots(); err != nil {
		http.Error(w, "failed to load snapshots", http.StatusInternalServerError)
		s.logger.Error("equity stream initial load", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendSnapshots(); err != nil {
				s.logger.Warn("equity stream poll", zap.Error(err))
			}
		}
	}
}
