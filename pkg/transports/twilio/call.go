package twilio

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/lexturn/pkg/capture"
	"github.com/harunnryd/lexturn/pkg/encoder"
)

// mediaChunk is 20ms of 8 kHz mu-law.
const mediaChunk = 160

// Call is one connected media stream.
type Call struct {
	SID            string
	StreamSID      string
	From           string
	ConversationID string

	conn    *websocket.Conn
	writeMu sync.Mutex
	log     *slog.Logger

	samples chan []int16
	digits  chan string
	dropped atomic.Int64

	cancel    context.CancelFunc
	done      chan struct{}
	endOnce   sync.Once
	endReason atomic.Value
	closed    atomic.Bool

	hangup func(ctx context.Context, callSID string) error
}

func newCall(start *Start, conn *websocket.Conn, buffer int, cancel context.CancelFunc, log *slog.Logger) *Call {
	c := &Call{
		SID:            start.CallSID,
		StreamSID:      start.StreamSID,
		From:           start.From,
		ConversationID: newConversationID(),
		conn:           conn,
		samples:        make(chan []int16, buffer),
		digits:         make(chan string, 32),
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	c.log = log.With("call_sid", c.SID, "stream", c.StreamSID)
	return c
}

// Source drops audio queued so far and returns a source that starts at the
// live edge of the call. It ends with io.EOF when the call ends.
func (c *Call) Source() capture.Source {
	for {
		select {
		case _, ok := <-c.samples:
			if !ok {
				return capture.NewChannelSource(c.samples)
			}
		default:
			return capture.NewChannelSource(c.samples)
		}
	}
}

// Digits delivers DTMF key presses.
func (c *Call) Digits() <-chan string { return c.digits }

// Done is closed when the call ends.
func (c *Call) Done() <-chan struct{} { return c.done }

// EndReason is set once the call has ended.
func (c *Call) EndReason() string {
	v, _ := c.endReason.Load().(string)
	return v
}

// Dropped reports inbound chunks discarded because nobody was reading.
func (c *Call) Dropped() int64 { return c.dropped.Load() }

// Play sends audio to the caller. Accepted types are mu-law at 8 kHz and
// 16-bit little-endian PCM at a multiple of 8 kHz. It returns once the audio
// is queued on the stream, with the playback length of what was queued.
func (c *Call) Play(ctx context.Context, audio []byte, contentType string) (time.Duration, error) {
	payload, err := toMuLaw(audio, contentType)
	if err != nil {
		return 0, err
	}
	length := time.Duration(len(payload)) * time.Second / SampleRate
	for off := 0; off < len(payload); off += mediaChunk {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		end := min(off+mediaChunk, len(payload))
		if err := c.send(Event{
			Event:     eventMedia,
			StreamSID: c.StreamSID,
			Media:     &Media{Payload: base64.StdEncoding.EncodeToString(payload[off:end])},
		}); err != nil {
			return 0, err
		}
	}
	return length, nil
}

// Clear drops audio the caller has not heard yet.
func (c *Call) Clear() error {
	return c.send(Event{Event: eventClear, StreamSID: c.StreamSID})
}

// Hangup ends the call on the carrier side.
func (c *Call) Hangup(ctx context.Context) error {
	if c.hangup == nil {
		return fmt.Errorf("twilio: hangup not available")
	}
	return c.hangup(ctx, c.SID)
}

func (c *Call) send(evt Event) error {
	if c.closed.Load() {
		return fmt.Errorf("twilio: call %s ended", c.SID)
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// push is called from the stream reader only.
func (c *Call) push(chunk []int16) {
	if c.closed.Load() {
		return
	}
	select {
	case c.samples <- chunk:
	default:
		if c.dropped.Add(1) == 1 {
			c.log.Warn("twilio_inbound_dropped")
		}
	}
}

func (c *Call) pushDigit(d string) {
	if c.closed.Load() {
		return
	}
	select {
	case c.digits <- d:
	default:
	}
}

// end is called from the stream reader or the status callback; the first
// reason wins.
func (c *Call) end(reason string) {
	c.endOnce.Do(func() {
		c.endReason.Store(reason)
		c.closed.Store(true)
		c.cancel()
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.log.Info("twilio_call_ended", "reason", reason, "dropped_chunks", c.dropped.Load())
	})
}

// finish closes the inbound channels once the stream reader has stopped.
func (c *Call) finish() {
	close(c.samples)
	close(c.digits)
}

func toMuLaw(audio []byte, contentType string) ([]byte, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("twilio: content type %q: %w", contentType, err)
	}
	switch mediaType {
	case "audio/x-mulaw", "audio/mulaw", "audio/basic":
		return audio, nil
	case "audio/pcm", "audio/lpcm", "audio/l16":
		rate := SampleRate * 2
		for _, key := range []string{"rate", "sample-rate"} {
			if v, ok := params[key]; ok {
				if rate, err = strconv.Atoi(v); err != nil {
					return nil, fmt.Errorf("twilio: sample rate %q", v)
				}
			}
		}
		if rate%SampleRate != 0 {
			return nil, fmt.Errorf("twilio: cannot resample %d Hz to %d Hz", rate, SampleRate)
		}
		order := binary.ByteOrder(binary.LittleEndian)
		if mediaType == "audio/l16" || strings.EqualFold(params["is-big-endian"], "true") {
			order = binary.BigEndian
		}
		pcm := downsample(encoder.DecodePCM16(order, audio), rate/SampleRate)
		out := make([]byte, len(pcm))
		for i, s := range pcm {
			out[i] = encoder.MuLawEncodeSample(s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("twilio: unsupported prompt audio %s", mediaType)
	}
}

// downsample averages each group of factor samples.
func downsample(in []int16, factor int) []int16 {
	if factor <= 1 {
		return in
	}
	out := make([]int16, 0, len(in)/factor)
	for i := 0; i+factor <= len(in); i += factor {
		sum := 0
		for _, s := range in[i : i+factor] {
			sum += int(s)
		}
		out = append(out, int16(sum/factor))
	}
	return out
}
