package nativemsg_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/reglet-dev/finguard/host"
	"github.com/reglet-dev/finguard/nativemsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shim plays the browser side of the channel.
type shim struct {
	t      *testing.T
	toHost *io.PipeWriter
	fromUs *io.PipeReader
}

func newBridge(t *testing.T) (*nativemsg.Bridge, *shim, <-chan error) {
	t.Helper()
	hostIn, shimOut := io.Pipe()
	shimIn, hostOut := io.Pipe()

	b := nativemsg.NewBridge(hostIn, hostOut)
	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	s := &shim{t: t, toHost: shimOut, fromUs: shimIn}
	t.Cleanup(func() {
		_ = shimOut.Close()
		_ = shimIn.Close()
	})
	return b, s, done
}

func (s *shim) send(f nativemsg.Frame) {
	data, err := json.Marshal(f)
	require.NoError(s.t, err)
	require.NoError(s.t, nativemsg.WriteMessage(s.toHost, data))
}

func (s *shim) next() nativemsg.Frame {
	data, err := nativemsg.ReadMessage(s.fromUs)
	require.NoError(s.t, err)
	var f nativemsg.Frame
	require.NoError(s.t, json.Unmarshal(data, &f))
	return f
}

// serve answers one request with result, or with an error frame when
// errMsg is set. It returns the request it answered.
func (s *shim) serve(result any, errMsg string) <-chan nativemsg.Frame {
	got := make(chan nativemsg.Frame, 1)
	go func() {
		req := s.next()
		resp := nativemsg.Frame{ID: nativemsg.NewFrameID(), CorrelID: req.ID, Type: nativemsg.FrameResponse}
		if errMsg != "" {
			resp.Type = nativemsg.FrameErr
			resp.Error = &nativemsg.ErrorDetail{Code: 7, Message: errMsg}
		} else if result != nil {
			raw, _ := json.Marshal(result)
			resp.Data = raw
		}
		s.send(resp)
		got <- req
	}()
	return got
}

func TestBridge_ListExtensions(t *testing.T) {
	b, s, _ := newBridge(t)
	want := []host.ExtensionInfo{{ID: "a", Name: "A", Enabled: true}}
	reqCh := s.serve(want, "")

	got, err := b.ListExtensions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	req := <-reqCh
	assert.Equal(t, nativemsg.FrameRequest, req.Type)
	assert.Equal(t, nativemsg.MethodListExtensions, req.Method)
	assert.NotEmpty(t, req.ID)
}

func TestBridge_SetEnabledSendsParams(t *testing.T) {
	b, s, _ := newBridge(t)
	reqCh := s.serve(nil, "")

	require.NoError(t, b.SetEnabled(context.Background(), "abc", true))

	req := <-reqCh
	assert.Equal(t, nativemsg.MethodSetEnabled, req.Method)
	assert.JSONEq(t, `{"id":"abc","enabled":true}`, string(req.Data))
}

func TestBridge_RemoteError(t *testing.T) {
	b, s, _ := newBridge(t)
	s.serve(nil, "extension is managed by policy")

	err := b.SetEnabled(context.Background(), "abc", false)
	require.Error(t, err)

	var rerr *nativemsg.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, nativemsg.MethodSetEnabled, rerr.Method)
	assert.Equal(t, 7, rerr.Code)
	assert.Equal(t, "extension is managed by policy", rerr.Message)
}

func TestBridge_GetTabAndPopup(t *testing.T) {
	b, s, _ := newBridge(t)
	ctx := context.Background()

	s.serve(host.Tab{ID: 4, URL: "https://www.kraken.com/"}, "")
	tab, err := b.GetTab(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "https://www.kraken.com/", tab.URL)

	reqCh := s.serve(nil, "")
	require.NoError(t, b.OpenPopup(ctx, host.PopupOptions{URL: "/popup.html?id=x", Width: 400, Height: 600, Top: 100, Focused: true}))
	req := <-reqCh
	assert.Equal(t, nativemsg.MethodCreateWindow, req.Method)
	assert.JSONEq(t, `{"url":"/popup.html?id=x","type":"popup","width":400,"height":600,"top":100,"focused":true}`, string(req.Data))
}

func TestBridge_Storage(t *testing.T) {
	b, s, _ := newBridge(t)
	ctx := context.Background()

	reqCh := s.serve(nil, "")
	require.NoError(t, b.Set(ctx, "disabledExtensions", nil))
	req := <-reqCh
	assert.Equal(t, nativemsg.MethodStorageSet, req.Method)
	assert.JSONEq(t, `{"key":"disabledExtensions","values":[]}`, string(req.Data))

	s.serve(map[string]any{"values": []string{"a", "b"}, "found": true}, "")
	ids, ok, err := b.Get(ctx, "disabledExtensions")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestBridge_Events(t *testing.T) {
	b, s, _ := newBridge(t)

	raw, err := json.Marshal(host.Event{TabID: 3, Status: host.TabStatusComplete, Tab: &host.Tab{ID: 3, URL: "https://x.test/"}})
	require.NoError(t, err)
	s.send(nativemsg.Frame{ID: "1", Type: nativemsg.FrameEvent, Method: string(host.EventTabUpdated), Data: raw})
	s.send(nativemsg.Frame{ID: "2", Type: nativemsg.FrameEvent, Method: string(host.EventRuntimeStartup)})

	select {
	case evt := <-b.Events():
		assert.Equal(t, host.EventTabUpdated, evt.Kind)
		assert.Equal(t, 3, evt.TabID)
		require.NotNil(t, evt.Tab)
		assert.Equal(t, "https://x.test/", evt.Tab.URL)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	select {
	case evt := <-b.Events():
		assert.Equal(t, host.EventRuntimeStartup, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestBridge_CloseFailsRequests(t *testing.T) {
	b, s, done := newBridge(t)

	go func() {
		// Swallow the request, then hang up.
		_ = s.next()
		_ = s.toHost.Close()
	}()

	err := b.SetEnabled(context.Background(), "abc", true)
	assert.ErrorIs(t, err, nativemsg.ErrClosed)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	_, ok := <-b.Events()
	assert.False(t, ok)
	assert.ErrorIs(t, b.SetEnabled(context.Background(), "abc", true), nativemsg.ErrClosed)
}

func TestBridge_InvalidFramesAreSkipped(t *testing.T) {
	b, s, _ := newBridge(t)

	require.NoError(t, nativemsg.WriteMessage(s.toHost, []byte("not json")))
	s.send(nativemsg.Frame{ID: "x", Type: nativemsg.FrameResponse, CorrelID: "unknown"})

	reqCh := s.serve([]host.ExtensionInfo{}, "")
	_, err := b.ListExtensions(context.Background())
	require.NoError(t, err)
	<-reqCh
}

func TestBridge_RequestHonorsContext(t *testing.T) {
	b, s, _ := newBridge(t)
	go func() { _ = s.next() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.SetEnabled(ctx, "abc", true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
