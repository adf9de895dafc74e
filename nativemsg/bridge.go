package nativemsg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/reglet-dev/finguard/host"
	"github.com/reglet-dev/finguard/statestore"
)

var (
	_ host.Platform    = (*Bridge)(nil)
	_ statestore.Store = (*Bridge)(nil)
)

// Bridge speaks native messaging with the extension shim. It forwards
// browser events to Events and turns host capability calls into request
// frames, correlating the responses by frame id.
type Bridge struct {
	r      io.Reader
	w      io.Writer
	logger *slog.Logger

	wmu sync.Mutex

	// Request-response correlation.
	pending sync.Map // frameID → chan *Frame

	events chan host.Event
	done   chan struct{}
	closed atomic.Bool
}

// eventBuffer is how many events may queue before the read loop waits for
// the consumer.
const eventBuffer = 64

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. It must not write to the bridge's writer.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// NewBridge creates a bridge reading frames from r and writing to w,
// typically os.Stdin and os.Stdout.
func NewBridge(r io.Reader, w io.Writer, opts ...Option) *Bridge {
	b := &Bridge{
		r:      r,
		w:      w,
		events: make(chan host.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Events returns the browser event stream. It is closed when Run returns.
func (b *Bridge) Events() <-chan host.Event {
	return b.events
}

// Run reads frames until the browser closes the channel, ctx is canceled
// or a framing error occurs. A clean end of stream returns nil. Pending
// and later requests fail with ErrClosed once Run returns.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.shutdown()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			data, err := ReadMessage(b.r)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- data:
			case <-b.done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				b.logger.Info("browser closed native messaging channel")
				return nil
			}
			return err
		case data := <-frames:
			if err := b.dispatch(ctx, data); err != nil {
				return err
			}
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, data []byte) error {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		b.logger.Warn("invalid native message", "error", err)
		return nil
	}

	switch frame.Type {
	case FrameResponse, FrameErr:
		if val, ok := b.pending.Load(frame.CorrelID); ok {
			ch := val.(chan *Frame) //nolint:errcheck // pending map always stores chan *Frame
			select {
			case ch <- &frame:
			default:
			}
		} else {
			b.logger.Debug("response for unknown request", "correl_id", frame.CorrelID)
		}
	case FrameEvent:
		var evt host.Event
		if len(frame.Data) > 0 {
			if err := json.Unmarshal(frame.Data, &evt); err != nil {
				b.logger.Warn("invalid event payload", "method", frame.Method, "error", err)
				return nil
			}
		}
		if evt.Kind == "" {
			evt.Kind = host.EventKind(frame.Method)
		}
		select {
		case b.events <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		b.logger.Warn("unexpected native message", "type", frame.Type, "method", frame.Method)
	}
	return nil
}

func (b *Bridge) shutdown() {
	if b.closed.Swap(true) {
		return
	}
	close(b.done)
	close(b.events)
}

// request sends a request frame and waits for the correlated response.
func (b *Bridge) request(ctx context.Context, method string, params, result any) error {
	if b.closed.Load() {
		return ErrClosed
	}

	frame := &Frame{
		ID:     NewFrameID(),
		Type:   FrameRequest,
		Method: method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal request data: %w", err)
		}
		frame.Data = raw
	}

	respCh := make(chan *Frame, 1)
	b.pending.Store(frame.ID, respCh)
	defer b.pending.Delete(frame.ID)

	if err := b.writeFrame(frame); err != nil {
		return err
	}

	select {
	case resp := <-respCh:
		if resp.Type == FrameErr {
			rerr := &RemoteError{Method: method, Message: "unknown error"}
			if resp.Error != nil {
				rerr.Code = resp.Error.Code
				rerr.Message = resp.Error.Message
			}
			return rerr
		}
		if result != nil && len(resp.Data) > 0 {
			if err := json.Unmarshal(resp.Data, result); err != nil {
				return fmt.Errorf("decoding %s response: %w", method, err)
			}
		}
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeFrame JSON-encodes and sends a frame.
func (b *Bridge) writeFrame(frame *Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	b.wmu.Lock()
	defer b.wmu.Unlock()
	if err := WriteMessage(b.w, data); err != nil {
		return fmt.Errorf("write %s frame: %w", frame.Method, err)
	}
	return nil
}

func (b *Bridge) ListExtensions(ctx context.Context) ([]host.ExtensionInfo, error) {
	var exts []host.ExtensionInfo
	if err := b.request(ctx, MethodListExtensions, nil, &exts); err != nil {
		return nil, err
	}
	return exts, nil
}

func (b *Bridge) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return b.request(ctx, MethodSetEnabled, setEnabledParams{ID: id, Enabled: enabled}, nil)
}

func (b *Bridge) GetTab(ctx context.Context, tabID int) (host.Tab, error) {
	var tab host.Tab
	if err := b.request(ctx, MethodGetTab, getTabParams{TabID: tabID}, &tab); err != nil {
		return host.Tab{}, err
	}
	return tab, nil
}

func (b *Bridge) OpenPopup(ctx context.Context, opts host.PopupOptions) error {
	return b.request(ctx, MethodCreateWindow, createWindowParams{
		URL:     opts.URL,
		Type:    "popup",
		Width:   opts.Width,
		Height:  opts.Height,
		Top:     opts.Top,
		Focused: opts.Focused,
	}, nil)
}

// Get reads key from the extension's local storage.
func (b *Bridge) Get(ctx context.Context, key string) ([]string, bool, error) {
	var res storageGetResult
	if err := b.request(ctx, MethodStorageGet, storageGetParams{Key: key}, &res); err != nil {
		return nil, false, err
	}
	return res.Values, res.Found, nil
}

// Set writes key to the extension's local storage.
func (b *Bridge) Set(ctx context.Context, key string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return b.request(ctx, MethodStorageSet, storageSetParams{Key: key, Values: ids}, nil)
}
