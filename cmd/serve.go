// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/Thermoquad/bisscope/pkg/bissc"
	"github.com/Thermoquad/bisscope/pkg/capture"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	serveListen        string
	servePath          string
	serveStatsInterval int
)

// clientQueue is the number of records buffered per client before frames
// are dropped for it
const clientQueue = 256

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Stream capture records from the local encoder over WebSocket",
	Long: `Calibrate the local encoder (--simulate or --spi) and stream capture
records to WebSocket clients. Each record is sent as one binary message.
A client first receives the session record, then every frame as it is read.

Clients that fall behind lose frames; the frame sequence numbers show the
gaps. With --username set, clients must authenticate with HTTP Basic auth
using the BISSCOPE_PASSWORD password.

Connect with: bisscope monitor --url ws://host:8080/capture`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&servePath, "path", "/capture", "WebSocket endpoint path")
	serveCmd.Flags().IntVar(&serveStatsInterval, "stats-interval", 10, "Status log interval (seconds)")
}

// broadcaster fans encoded records out to connected clients
type broadcaster struct {
	mu      sync.Mutex
	session []byte
	clients map[chan []byte]struct{}
	dropped uint64
}

func newBroadcaster(session []byte) *broadcaster {
	return &broadcaster{
		session: session,
		clients: make(map[chan []byte]struct{}),
	}
}

// subscribe registers a client queue primed with the session record
func (b *broadcaster) subscribe() chan []byte {
	ch := make(chan []byte, clientQueue)
	b.mu.Lock()
	defer b.mu.Unlock()
	ch <- b.session
	b.clients[ch] = struct{}{}
	return ch
}

func (b *broadcaster) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, ch)
}

// publish queues a record for every client without blocking
func (b *broadcaster) publish(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- data:
		default:
			b.dropped++
		}
	}
}

// setSession replaces the record sent to new clients and forwards it to
// connected ones
func (b *broadcaster) setSession(data []byte) {
	b.mu.Lock()
	b.session = data
	b.mu.Unlock()
	b.publish(data)
}

func (b *broadcaster) count() (clients int, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients), b.dropped
}

// serveClient writes queued records to one WebSocket client until it
// disconnects
func serveClient(conn *websocket.Conn, b *broadcaster) {
	defer conn.Close()
	ch := b.subscribe()
	defer b.unsubscribe(ch)

	// Detect client close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-ch:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// basicAuth wraps h with HTTP Basic auth when a username is configured
func basicAuth(h http.Handler, username, password string) http.Handler {
	if username == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), []byte(password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="bisscope"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	password := ""
	if wsUsername != "" {
		if password, err = GetPassword(); err != nil {
			return err
		}
	}

	src, session, err := openCalibrated(cfg, nil)
	if err != nil {
		return err
	}
	defer src.Close()

	fs := &frameStreamer{session: session, enc: capture.NewEncoder(), threshold: cfg.Fault.CRCThreshold}
	data, err := fs.sessionRecord()
	if err != nil {
		return err
	}
	b := newBroadcaster(data)
	fs.b = b

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: capture.MaxFrameSize * 2,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.Handle(servePath, basicAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Upgrade failed: %v", err)
			return
		}
		log.Printf("Client connected: %s", r.RemoteAddr)
		serveClient(conn, b)
		log.Printf("Client disconnected: %s", r.RemoteAddr)
	}), wsUsername, password))

	server := &http.Server{Addr: serveListen, Handler: mux}
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	fmt.Printf("Bisscope - Serve\n")
	fmt.Printf("Source: %s\n", src.info)
	fmt.Printf("Listening on ws://%s%s\n", serveListen, servePath)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if serveStatsInterval < 1 {
		serveStatsInterval = 1
	}
	statsTicker := time.NewTicker(time.Duration(serveStatsInterval) * time.Second)
	defer statsTicker.Stop()

	var runErr error
	tickLoop(ctx, session, cfg.SamplePeriod(), func(res bissc.Result, err error) bool {
		select {
		case err := <-serverErr:
			runErr = fmt.Errorf("server: %w", err)
			return false
		case <-statsTicker.C:
			clients, dropped := b.count()
			log.Printf("%d clients, %d frames, %d CRC errors, %d dropped",
				clients, session.Stats().TotalFrames, session.Stats().CRCErrors, dropped)
		default:
		}

		if err := fs.handle(res, err); err != nil {
			runErr = err
			return false
		}
		return true
	})

	shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdown); err != nil {
		return err
	}
	return runErr
}

// frameStreamer publishes a local session's frames and reinitialises the
// encoder on a CRC fault
type frameStreamer struct {
	session   *bissc.Session
	enc       *capture.Encoder
	b         *broadcaster
	threshold int
	seq       uint64
}

// sessionRecord encodes the session's configuration and calibration
func (f *frameStreamer) sessionRecord() ([]byte, error) {
	c, _ := f.session.Calibration()
	return f.enc.Encode(capture.SessionRecord(f.session.Name(), f.session.Config(), c, time.Now()))
}

// handle publishes one tick's frame. After a fault reinit the new session
// record goes to every client. It returns an error only when the encoder
// could not be recalibrated.
func (f *frameStreamer) handle(res bissc.Result, err error) error {
	if err != nil && !errors.Is(err, bissc.ErrCRCMismatch) {
		log.Printf("%v", err)
		return nil
	}

	f.seq++
	data, err := f.enc.Encode(capture.FrameRecord(f.seq, res.Raw, res.Time))
	if err != nil {
		log.Printf("Encode failed: %v", err)
		return nil
	}
	f.b.publish(data)

	reinit, err := recoverFault(f.session, f.threshold)
	if err != nil {
		return err
	}
	if !reinit {
		return nil
	}
	log.Printf("CRC fault after %d consecutive errors, encoder reinitialised", f.threshold)
	data, err = f.sessionRecord()
	if err != nil {
		log.Printf("Encode failed: %v", err)
		return nil
	}
	f.b.setSession(data)
	return nil
}
