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
	"github.com/harunnryd/lexturn/pkg/redact"
)

// TimelineObserver appends every event of a conversation to
// <dir>/<conversation>.jsonl. Lines carry a per-file sequence number so a
// trace can be replayed in order even when timestamps collide.
type TimelineObserver struct {
	dir string

	mu     sync.Mutex
	traces map[string]*trace
}

type trace struct {
	f   *os.File
	enc *json.Encoder
	seq int
}

type timelineLine struct {
	Seq            int               `json:"seq"`
	Time           time.Time         `json:"time"`
	Event          string            `json:"event"`
	ConversationID string            `json:"conversation_id"`
	Turn           string            `json:"turn,omitempty"`
	Value          float64           `json:"value,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	Fields         map[string]any    `json:"fields,omitempty"`
}

func NewTimelineObserver(dir string) *TimelineObserver {
	return &TimelineObserver{dir: strings.TrimSpace(dir), traces: make(map[string]*trace)}
}

// RecordEvent drops events that carry no conversation id.
func (o *TimelineObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := ev.Tags[metrics.TagConversationID]
	if id == "" || o.dir == "" {
		return
	}
	line := timelineLine{
		Time:           ev.Time.UTC(),
		Event:          ev.Name,
		ConversationID: id,
		Turn:           ev.Tags[metrics.TagTurn],
		Value:          ev.Value,
		Tags:           tagsWithout(ev.Tags, metrics.TagConversationID, metrics.TagTurn),
		Fields:         redactFields(ev.Fields),
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	tr, err := o.open(id)
	if err != nil {
		return
	}
	tr.seq++
	line.Seq = tr.seq
	_ = tr.enc.Encode(line)
}

func (o *TimelineObserver) open(id string) (*trace, error) {
	name := sanitizeID(id)
	if name == "" {
		return nil, errors.New("empty conversation id")
	}
	if tr, ok := o.traces[name]; ok {
		return tr, nil
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(o.dir, name+TimelineSuffix), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	tr := &trace{f: f, enc: json.NewEncoder(f)}
	o.traces[name] = tr
	return tr, nil
}

// Flush syncs open traces to disk.
func (o *TimelineObserver) Flush() error {
	return o.each(func(tr *trace) error { return tr.f.Sync() }, false)
}

// Close closes every open trace. Later events reopen their file in append mode.
func (o *TimelineObserver) Close() error {
	return o.each(func(tr *trace) error { return tr.f.Close() }, true)
}

func (o *TimelineObserver) each(fn func(*trace) error, forget bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs []error
	for _, tr := range o.traces {
		errs = append(errs, fn(tr))
	}
	if forget {
		o.traces = make(map[string]*trace)
	}
	return errors.Join(errs...)
}

// sanitizeID turns a conversation id into a safe file stem.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || r == '.' ||
			('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return r
		}
		return '_'
	}, strings.TrimSpace(id))
}

func tagsWithout(in map[string]string, drop ...string) map[string]string {
	var out map[string]string
outer:
	for k, v := range in {
		for _, d := range drop {
			if k == d {
				continue outer
			}
		}
		if out == nil {
			out = make(map[string]string, len(in))
		}
		out[k] = v
	}
	return out
}

// redactFields masks free text such as transcripts and bot messages.
func redactFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch v := v.(type) {
		case string:
			out[k] = redact.Text(v)
		case map[string]string:
			out[k] = redact.Attributes(v)
		default:
			out[k] = v
		}
	}
	return out
}

var _ metrics.Observer = (*TimelineObserver)(nil)
