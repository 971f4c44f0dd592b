package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/lexturn/pkg/metrics"
)

// UsageSummary is the per-conversation usage record written by UsageObserver.
type UsageSummary struct {
	ConversationID string         `json:"conversation_id"`
	Turns          int            `json:"turns"`
	AudioSecondsIn float64        `json:"audio_seconds_in"`
	AudioBytesOut  int            `json:"audio_bytes_out"`
	Outcomes       map[string]int `json:"outcomes"`
	RecordedAtUTC  string         `json:"recorded_at_utc"`
}

// UsageObserver counts turns and captured audio per conversation.
type UsageObserver struct {
	dir   string
	mu    sync.Mutex
	stats map[string]*UsageSummary
}

func NewUsageObserver(dir string) *UsageObserver {
	return &UsageObserver{dir: dir, stats: make(map[string]*UsageSummary)}
}

func (o *UsageObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := ev.Tags[metrics.TagConversationID]
	if id == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	stat := o.stats[id]
	if stat == nil {
		stat = &UsageSummary{ConversationID: id, Outcomes: make(map[string]int)}
		o.stats[id] = stat
	}
	switch ev.Name {
	case metrics.EventTurnStarted:
		stat.Turns++
	case metrics.EventCaptureDone:
		stat.AudioSecondsIn += ev.Value
	case metrics.EventTurnState:
		if state := ev.Tags[metrics.TagState]; state != "" {
			stat.Outcomes[state]++
		}
	case metrics.EventTransportRequest:
		if n, ok := ev.Fields["audio_bytes"].(int); ok {
			stat.AudioBytesOut += n
		}
	}
}

// Summary returns a copy of the usage recorded for a conversation.
func (o *UsageObserver) Summary(conversationID string) (UsageSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	stat := o.stats[conversationID]
	if stat == nil {
		return UsageSummary{}, false
	}
	out := *stat
	out.Outcomes = make(map[string]int, len(stat.Outcomes))
	for k, v := range stat.Outcomes {
		out.Outcomes[k] = v
	}
	return out, true
}

// Flush writes one <conversation>.usage.json per conversation seen so far.
func (o *UsageObserver) Flush() error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	var errOut error
	for id, stat := range o.stats {
		stat.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
		b, err := json.MarshalIndent(stat, "", "  ")
		if err != nil {
			errOut = errors.Join(errOut, err)
			continue
		}
		path := filepath.Join(o.dir, sanitizeID(id)+UsageSuffix)
		if err := os.WriteFile(path, b, 0o644); err != nil {
			errOut = errors.Join(errOut, err)
		}
	}
	return errOut
}

var _ metrics.Observer = (*UsageObserver)(nil)
