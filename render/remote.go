// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package render

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/net/proxy"

	"go.mau.fi/chatreel"
	"go.mau.fi/chatreel/types"
)

// Rendered frames larger than this kill the connection.
const remoteMaxFrameSize = 2 << 23

var (
	ErrRendererClosed      = errors.New("remote renderer connection is closed")
	ErrRendererAlreadyOpen = errors.New("remote renderer is already connected")
	ErrRenderRejected      = errors.New("remote renderer rejected the request")
)

// renderRequest is sent as a text message for each frame.
type renderRequest struct {
	ID     uint64 `json:"id"`
	Index  int    `json:"index"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// renderError is the text message a renderer sends instead of a frame.
type renderError struct {
	ID    uint64 `json:"id"`
	Error string `json:"error"`
}

type renderResult struct {
	frame []byte
	err   error
}

// RemoteOptions configures a Remote before connecting. The zero value is
// usable: frames are requested at the default export size with no timeout.
type RemoteOptions struct {
	Log         zerolog.Logger
	Width       int
	Height      int
	HTTPHeaders http.Header
	HTTPClient  *http.Client
	// Timeout bounds each RenderFrame round trip. Zero means the request
	// context alone decides.
	Timeout time.Duration
}

// Remote is a FrameSource backed by an external renderer over a websocket.
// Each RenderFrame sends a JSON request and waits for the matching binary
// response, which is an 8-byte big-endian request ID followed by a PNG.
// Renderers report failures as JSON text messages with the same ID.
type Remote struct {
	url     string
	log     zerolog.Logger
	width   int
	height  int
	timeout time.Duration

	httpHeaders http.Header
	httpClient  *http.Client

	lock      sync.Mutex
	conn      *websocket.Conn
	cancelCtx context.Context
	cancel    context.CancelFunc
	closed    bool

	idCounter   atomic.Uint64
	waiters     map[uint64]chan renderResult
	waitersLock sync.Mutex
}

var _ chatreel.FrameSource = (*Remote)(nil)

// NewRemote prepares a renderer connection without dialing it. Call Connect,
// optionally after configuring a proxy.
func NewRemote(rendererURL string, opts RemoteOptions) *Remote {
	if opts.Width <= 0 {
		opts.Width = types.DefaultExportWidth
	}
	if opts.Height <= 0 {
		opts.Height = types.DefaultExportHeight
	}
	return &Remote{
		url:     rendererURL,
		log:     opts.Log,
		width:   opts.Width,
		height:  opts.Height,
		timeout: opts.Timeout,

		httpHeaders: opts.HTTPHeaders,
		httpClient:  opts.HTTPClient,

		waiters: make(map[uint64]chan renderResult),
	}
}

// Dial creates a Remote and connects it immediately.
func Dial(ctx context.Context, rendererURL string, opts RemoteOptions) (*Remote, error) {
	remote := NewRemote(rendererURL, opts)
	err := remote.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return remote, nil
}

// SetProxyAddress parses the given address and uses it as the proxy for the
// renderer websocket. http, https and socks5 URLs are supported. Must be
// called before Connect.
func (r *Remote) SetProxyAddress(addr string) error {
	if addr == "" {
		r.SetProxy(nil)
		return nil
	}
	parsed, err := url.Parse(addr)
	if err != nil {
		return err
	}
	if parsed.Scheme == "http" || parsed.Scheme == "https" {
		r.SetProxy(http.ProxyURL(parsed))
	} else if parsed.Scheme == "socks5" {
		px, err := proxy.FromURL(parsed, proxy.Direct)
		if err != nil {
			return err
		}
		r.SetSOCKSProxy(px)
	} else {
		return fmt.Errorf("unsupported proxy scheme %s", parsed.Scheme)
	}
	return nil
}

// SetProxy sets an HTTP proxy resolver (like http.ProxyURL or
// http.ProxyFromEnvironment) for the renderer websocket.
func (r *Remote) SetProxy(proxyVal func(*http.Request) (*url.URL, error)) {
	transport := &http.Transport{
		Proxy: proxyVal,
	}
	if r.httpClient == nil {
		r.httpClient = new(http.Client)
	}
	r.httpClient.Transport = transport
}

// SetSOCKSProxy routes the renderer websocket through the given SOCKS5 dialer.
func (r *Remote) SetSOCKSProxy(px proxy.Dialer) {
	transport := new(http.Transport)
	if contextDialer, ok := px.(proxy.ContextDialer); ok {
		transport.DialContext = contextDialer.DialContext
	} else {
		transport.Dial = px.Dial
	}
	if r.httpClient == nil {
		r.httpClient = new(http.Client)
	}
	r.httpClient.Transport = transport
}

func (r *Remote) IsConnected() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.conn != nil
}

// Connect dials the renderer and starts the read pump. The context only
// bounds the dial; the connection itself lives until Close.
func (r *Remote) Connect(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.conn != nil {
		return ErrRendererAlreadyOpen
	}
	r.cancelCtx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))

	r.log.Debug().Str("url", r.url).Msg("Dialing renderer websocket")
	conn, resp, err := websocket.Dial(ctx, r.url, &websocket.DialOptions{
		HTTPClient: r.httpClient,
		HTTPHeader: r.httpHeaders,
	})
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		r.cancel()
		return fmt.Errorf("failed to dial renderer websocket: %w", err)
	}
	conn.SetReadLimit(remoteMaxFrameSize)

	r.conn = conn
	r.closed = false

	go r.readPump(conn, r.cancelCtx)
	return nil
}

// Close sends a close frame and tears the connection down. Pending
// RenderFrame calls fail with ErrRendererClosed.
func (r *Remote) Close() error {
	r.disconnect(websocket.StatusNormalClosure)
	return nil
}

func (r *Remote) disconnect(code websocket.StatusCode) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.conn == nil {
		return
	}

	r.closed = true
	if code > 0 {
		err := r.conn.Close(code, "")
		if err != nil {
			r.log.Warn().Err(err).Msg("Error sending close to renderer websocket")
		}
	} else {
		err := r.conn.CloseNow()
		if err != nil {
			r.log.Debug().Err(err).Msg("Error force closing renderer websocket")
		}
	}
	r.conn = nil
	r.cancel()
	r.cancel = nil
	r.clearWaiters(ErrRendererClosed)
}

func (r *Remote) isClosed() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.closed
}

func (r *Remote) readPump(conn *websocket.Conn, ctx context.Context) {
	r.log.Debug().Msg("Renderer websocket read pump starting")
	defer func() {
		r.log.Debug().Msg("Renderer websocket read pump exiting")
		go r.disconnect(0)
	}()
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			// Ignore the error if the connection was closed on purpose
			if !r.isClosed() && !errors.Is(ctx.Err(), context.Canceled) {
				r.log.Err(err).Msg("Error reading from renderer websocket")
			}
			return
		}
		switch msgType {
		case websocket.MessageBinary:
			r.receiveFrame(data)
		case websocket.MessageText:
			r.receiveFailure(data)
		}
	}
}

func (r *Remote) receiveFrame(data []byte) {
	if len(data) < 8 {
		r.log.Warn().Int("length", len(data)).Msg("Received binary message shorter than the request ID")
		return
	}
	id := binary.BigEndian.Uint64(data[:8])
	if !r.deliverResult(id, renderResult{frame: data[8:]}) {
		r.log.Warn().Uint64("request_id", id).Msg("Received frame with no waiter")
	}
}

func (r *Remote) receiveFailure(data []byte) {
	var failure renderError
	err := json.Unmarshal(data, &failure)
	if err != nil {
		r.log.Warn().Err(err).Msg("Failed to parse text message from renderer")
		return
	}
	result := renderResult{err: fmt.Errorf("%w: %s", ErrRenderRejected, failure.Error)}
	if !r.deliverResult(failure.ID, result) {
		r.log.Warn().Uint64("request_id", failure.ID).Msg("Received error with no waiter")
	}
}

func (r *Remote) waitResult(id uint64) chan renderResult {
	ch := make(chan renderResult, 1)
	r.waitersLock.Lock()
	r.waiters[id] = ch
	r.waitersLock.Unlock()
	return ch
}

func (r *Remote) cancelResult(id uint64, ch chan renderResult) {
	r.waitersLock.Lock()
	// Only close if the waiter is still registered: a result that raced in
	// may already sit in the buffer.
	if _, ok := r.waiters[id]; ok {
		close(ch)
		delete(r.waiters, id)
	}
	r.waitersLock.Unlock()
}

func (r *Remote) deliverResult(id uint64, result renderResult) bool {
	r.waitersLock.Lock()
	defer r.waitersLock.Unlock()
	waiter, ok := r.waiters[id]
	if !ok {
		return false
	}
	delete(r.waiters, id)
	waiter <- result
	return true
}

func (r *Remote) clearWaiters(cause error) {
	r.waitersLock.Lock()
	for _, waiter := range r.waiters {
		select {
		case waiter <- renderResult{err: cause}:
		default:
			close(waiter)
		}
	}
	r.waiters = make(map[uint64]chan renderResult)
	r.waitersLock.Unlock()
}

// RenderFrame asks the renderer for the frame where messages[0..upTo] are
// visible and decodes the returned PNG.
func (r *Remote) RenderFrame(ctx context.Context, upTo int) (image.Image, error) {
	r.lock.Lock()
	conn := r.conn
	connCtx := r.cancelCtx
	r.lock.Unlock()
	if conn == nil {
		return nil, ErrRendererClosed
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	id := r.idCounter.Add(1)
	waiter := r.waitResult(id)
	payload, err := json.Marshal(renderRequest{ID: id, Index: upTo, Width: r.width, Height: r.height})
	if err != nil {
		r.cancelResult(id, waiter)
		return nil, err
	}
	err = conn.Write(ctx, websocket.MessageText, payload)
	if err != nil {
		r.cancelResult(id, waiter)
		return nil, fmt.Errorf("failed to send render request: %w", err)
	}

	select {
	case result := <-waiter:
		if result.err != nil {
			return nil, result.err
		}
		img, err := png.Decode(bytes.NewReader(result.frame))
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", upTo, err)
		}
		return img, nil
	case <-ctx.Done():
		r.cancelResult(id, waiter)
		return nil, ctx.Err()
	case <-connCtx.Done():
		r.cancelResult(id, waiter)
		return nil, ErrRendererClosed
	}
}
