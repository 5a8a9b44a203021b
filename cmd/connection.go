// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

// SerialConnection wraps a serial port. It exposes RTS so the handshake can
// keep Arduino-style boards out of reset.
type SerialConnection struct {
	port serial.Port
}

var _ flatcap.ControlPort = (*SerialConnection)(nil)

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

func (s *SerialConnection) SetReadTimeout(t time.Duration) error {
	return s.port.SetReadTimeout(t)
}

func (s *SerialConnection) ResetInputBuffer() error {
	return s.port.ResetInputBuffer()
}

func (s *SerialConnection) SetRTS(rts bool) error {
	return s.port.SetRTS(rts)
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection bridges a serial line carried in WebSocket messages.
//
// gorilla/websocket connections are unusable after a read deadline expires,
// so a background goroutine owns ReadMessage and Read waits on its channel
// with the configured timeout instead.
type WebSocketConnection struct {
	conn    *websocket.Conn
	frames  chan []byte
	closed  chan struct{}
	once    sync.Once
	buf     []byte
	timeout time.Duration

	mu      sync.Mutex
	readErr error
}

var _ flatcap.Port = (*WebSocketConnection)(nil)

func newWebSocketConnection(conn *websocket.Conn) *WebSocketConnection {
	w := &WebSocketConnection{
		conn:   conn,
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
	go w.readLoop()
	return w
}

func (w *WebSocketConnection) readLoop() {
	defer close(w.frames)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.readErr = err
			w.mu.Unlock()
			return
		}

		// Bridges send the serial bytes as binary or text
		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}

		select {
		case w.frames <- data:
		case <-w.closed:
			return
		}
	}
}

// Read returns buffered bytes, or waits up to the read timeout for the next
// message. A timeout returns (0, nil) like a serial port does.
func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		return n, nil
	}

	var expired <-chan time.Time
	if w.timeout > 0 {
		timer := time.NewTimer(w.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case data, ok := <-w.frames:
		if !ok {
			return 0, w.err()
		}
		n := copy(p, data)
		w.buf = data[n:]
		return n, nil
	case <-expired:
		return 0, nil
	}
}

func (w *WebSocketConnection) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readErr != nil {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, w.readErr)
	}
	return ErrConnectionClosed
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetReadTimeout sets how long Read waits. Zero or negative blocks.
func (w *WebSocketConnection) SetReadTimeout(t time.Duration) error {
	w.timeout = t
	return nil
}

// ResetInputBuffer discards everything received so far.
func (w *WebSocketConnection) ResetInputBuffer() error {
	w.buf = nil
	for {
		select {
		case _, ok := <-w.frames:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

func (w *WebSocketConnection) Close() error {
	w.once.Do(func() { close(w.closed) })
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port connection with RTS low.
func OpenSerialConnection(portName string, baudRate int) (*SerialConnection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
		InitialStatusBits: &serial.ModemOutputBits{
			RTS: false,
			DTR: true,
		},
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (*WebSocketConnection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketConnection(conn), nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("FLATCAP_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket connection based on the
// connection settings.
func OpenConnection(cfg connectionConfig) (flatcap.Port, string, error) {
	if cfg.URL != "" {
		password := ""
		if cfg.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(cfg.URL, cfg.Username, password, cfg.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", cfg.URL), nil
	}

	if cfg.Port != "" {
		conn, err := OpenSerialConnection(cfg.Port, cfg.Baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", cfg.Port, cfg.Baud), nil
	}

	return nil, "", errors.New("either --port, --url or --simulate must be specified")
}
