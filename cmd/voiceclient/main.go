package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Tharindu1527/sample-doc-ai/internal/archive"
	"github.com/Tharindu1527/sample-doc-ai/internal/capture"
	"github.com/Tharindu1527/sample-doc-ai/internal/config"
	"github.com/Tharindu1527/sample-doc-ai/internal/httpserver"
	"github.com/Tharindu1527/sample-doc-ai/internal/playback"
	"github.com/Tharindu1527/sample-doc-ai/internal/protocol"
	"github.com/Tharindu1527/sample-doc-ai/internal/session"
	"github.com/Tharindu1527/sample-doc-ai/internal/stream"
	"github.com/Tharindu1527/sample-doc-ai/pkg/logging"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logging.New(cfg.LogLevel)

	recorder := capture.NewFFmpegRecorder(capture.Options{
		FFmpegPath:       cfg.FFmpegPath,
		Device:           cfg.CaptureDevice,
		NoiseSuppression: cfg.NoiseSuppression,
		Logger:           log,
	})
	player := playback.NewFFplayPlayer(playback.Options{
		FFplayPath: cfg.FFplayPath,
		Logger:     log,
	})

	var arch session.Archiver
	if cfg.ArchiveEnabled() {
		a, err := archive.NewSupabase(archive.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
			Bucket:         cfg.SupabaseBucket,
		}, log)
		if err != nil {
			log.Warn("archival disabled", "error", err)
		} else {
			arch = a
		}
	}

	// The transport's callbacks land on the session; the session is built
	// right after, before any callback can fire.
	var sess *session.Session
	client := stream.NewClient(stream.Config{
		URL:        cfg.BackendURL,
		ResetDelay: cfg.ResetDelay,
	}, stream.Events{
		OnResponse:      func(r *protocol.Response) { sess.HandleResponse(r) },
		OnProtocolError: func(err error) { sess.HandleProtocolError(err) },
		OnStatusChange:  func(st stream.Status, cause error) { sess.HandleStatusChange(st, cause) },
	}, log)

	sess = session.New(session.Deps{
		Conn:     client,
		Recorder: recorder,
		Sink:     player,
		Archiver: arch,
		Logger:   log,
	})
	defer sess.Close()

	if err := sess.Connect(); err != nil {
		log.Warn("initial connect failed, use 'reset' to retry", "error", err)
	}

	e := httpserver.New()
	httpserver.NewHandlers(sess).Register(e)
	go func() {
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go interact(sess, player, log, done)

	select {
	case sig := <-sigChan:
		log.Info("shutdown signal received", "signal", sig.String())
	case <-done:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown failed", "error", err)
		_ = e.Close()
	}
}

// interact drives the session from stdin. Enter toggles recording; the
// named commands cover everything else.
func interact(sess *session.Session, player *playback.FFplayPlayer, log *logging.Logger, done chan<- struct{}) {
	defer close(done)

	fmt.Println("Voice assistant ready.")
	fmt.Println("  [enter]  start/stop recording")
	fmt.Println("  clear    wipe the conversation")
	fmt.Println("  reset    reset the connection")
	fmt.Println("  state    print the session state")
	fmt.Println("  quit     exit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		// Anything typed counts as user interaction, so deferred audio may
		// start now.
		player.PlayPending()

		switch strings.TrimSpace(strings.ToLower(scanner.Text())) {
		case "":
			if err := sess.ToggleRecording(); err != nil {
				fmt.Println("!", err)
				continue
			}
			if sess.Snapshot().Recording {
				fmt.Println("recording... press enter to send")
			} else {
				fmt.Println("sent, waiting for reply")
			}
		case "clear":
			sess.ClearMessages()
			fmt.Println("conversation cleared")
		case "reset":
			sess.ResetConnection()
			fmt.Println("connection reset scheduled")
		case "state":
			printState(sess.Snapshot())
		case "quit", "exit":
			return
		default:
			fmt.Println("unknown command")
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn("stdin closed", "error", err)
	}
}

func printState(st session.State) {
	fmt.Printf("connection=%s recording=%t processing=%t intent=%q urgency=%q\n",
		st.ConnectionStatus(), st.Recording, st.Processing, st.Intent, st.Urgency)
	if st.Err != "" {
		fmt.Println("error:", st.Err)
	}
	if st.CaptureDisabled != "" {
		fmt.Println("capture:", st.CaptureDisabled)
	}
	for _, turn := range st.Turns {
		fmt.Printf("  [%s] %s\n", turn.Role, turn.Content)
	}
	for _, s := range st.Suggestions {
		fmt.Println("  suggestion:", s)
	}
}
