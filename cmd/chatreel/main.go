// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Command chatreel replays conversation scripts in the terminal and exports
// them as animated GIFs.
//
// Usage:
//
//	chatreel info <script>
//	chatreel play [-speed 1.5] [-loop] <script>
//	chatreel export [-o out.gif] [-quality high] [-renderer ws://...] [-db addr] <script>
//	chatreel scripts [-db addr] [list|save|show|delete|history] [args]
//
// Scripts are YAML or JSON files; see the script package for the schema. The
// -db flag takes an SQLite file path or a postgres:// URL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"go.mau.fi/chatreel"
	"go.mau.fi/chatreel/events"
	"go.mau.fi/chatreel/render"
	"go.mau.fi/chatreel/script"
	"go.mau.fi/chatreel/store"
	"go.mau.fi/chatreel/timeline"
	"go.mau.fi/chatreel/types"
)

var log zerolog.Logger

func main() {
	logLevel := flag.String("log-level", "warn", "Log level (trace, debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level %q\n", *logLevel)
		os.Exit(2)
	}
	log = zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
		w.TimeFormat = time.StampMilli
	})).With().Timestamp().Logger().Level(level)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "info":
		err = runInfo(args[1:])
	case "play":
		err = runPlay(ctx, args[1:])
	case "export":
		err = runExport(ctx, args[1:])
	case "scripts":
		err = runScripts(ctx, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", args[0])
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Str("command", args[0]).Msg("Command failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: chatreel [-log-level level] <command> [flags] [args]

Commands:
  info <script>                     Show timing, segments and keyframes
  play [flags] <script>             Replay the script in the terminal
  export [flags] <script>           Render the script into an animated GIF
  scripts [flags] [action] [args]   Manage stored scripts and export history

Script actions: list (default), save <name> <file>, show <name>,
delete <name>, history.

Run a command with -h for its flags.
`)
}

func loadScript(path string) ([]types.Message, error) {
	parsed, err := script.Load(path)
	if err != nil {
		return nil, err
	}
	msgs := parsed.Messages()
	if len(msgs) == 0 {
		return nil, fmt.Errorf("script %s contains no messages", path)
	}
	return msgs, nil
}

func openStore(ctx context.Context, address string) (*store.Container, error) {
	dialect := "sqlite"
	if strings.HasPrefix(address, "postgres://") || strings.HasPrefix(address, "postgresql://") {
		dialect = "pgx"
	}
	container, err := store.New(ctx, dialect, address, log)
	if err != nil {
		return nil, err
	}
	err = container.Upgrade(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("failed to upgrade database: %w", err)
	}
	return container, nil
}

// formatLine renders one message for the terminal. Pauses produce nothing.
func formatLine(msg types.Message) string {
	arrow := "<-"
	if msg.FromMe {
		arrow = "->"
	}
	var body string
	switch msg.Category {
	case types.MessagePause:
		return ""
	case types.MessageTyping:
		body = "(typing…)"
	case types.MessageVoice:
		body = "[voice " + msg.VoiceLength + "]"
	case types.MessageImage:
		body = "[image " + msg.ImagePath + "]"
	case types.MessageLocation:
		if msg.Place != "" {
			body = "[location " + msg.Place + "]"
		} else {
			body = fmt.Sprintf("[location %.4f,%.4f]", msg.Latitude, msg.Longitude)
		}
	case types.MessageRecall:
		body = "(message deleted)"
	default:
		body = msg.Text
	}
	return fmt.Sprintf("%s %-10s %s", arrow, msg.Speaker, body)
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: chatreel info <script>")
	}
	msgs, err := loadScript(fs.Arg(0))
	if err != nil {
		return err
	}
	tl := timeline.NewIndex(msgs)

	fmt.Printf("Script:   %s\n", fs.Arg(0))
	fmt.Printf("Messages: %d\n", tl.Len())
	fmt.Printf("Duration: %s\n\n", tl.TotalDuration().Round(10*time.Millisecond))

	fmt.Println("  IDX    START   LENGTH  MESSAGE")
	for _, seg := range tl.Segments() {
		fmt.Printf("  %3d  %6.1fs  %6.1fs  %s\n", seg.Index, seg.Start.Seconds(), seg.Duration().Seconds(), formatLine(msgs[seg.Index]))
	}

	keyframes := tl.Keyframes()
	if len(keyframes) > 0 {
		fmt.Printf("\nKeyframes (%d):\n", len(keyframes))
		for _, kf := range keyframes {
			fmt.Printf("  %6.1fs  #%d  %s\n", kf.Time.Seconds(), kf.Index, kf.Label)
		}
	}
	return nil
}

func runPlay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	speed := fs.Float64("speed", 1, "Playback speed multiplier (clamped to 0.25-4)")
	loop := fs.Bool("loop", false, "Restart from the beginning after the last message")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: chatreel play [-speed 1.5] [-loop] <script>")
	}
	msgs, err := loadScript(fs.Arg(0))
	if err != nil {
		return err
	}

	player := chatreel.NewPlayer(chatreel.PlayerConfig{Log: log})
	player.SetMessages(msgs)
	if *speed != 1 {
		player.SetSpeed(*speed)
	}
	if *loop {
		player.SetMode(types.PlayModeLoop)
	}

	done := make(chan struct{})
	var printLock sync.Mutex
	lastShown := -1
	player.AddEventHandler(func(evt any) {
		switch evt := evt.(type) {
		case *events.StateSync:
			printLock.Lock()
			idx := evt.State.CurrentIndex
			if idx >= 0 && idx != lastShown {
				if line := formatLine(msgs[idx]); line != "" {
					fmt.Println(line)
				}
				lastShown = idx
			}
			printLock.Unlock()
		case *events.Completed:
			close(done)
		}
	})

	fmt.Printf("Playing %d messages, %s at %.2gx\n\n", len(msgs), player.Timeline().TotalDuration().Round(10*time.Millisecond), player.State().Speed)
	player.Play()

	select {
	case <-done:
		fmt.Println("\nDone")
	case <-ctx.Done():
		player.Stop()
		fmt.Println("\nInterrupted")
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	output := fs.String("o", "", "Output path (default: generated name in the working directory)")
	width := fs.Int("width", 0, "Frame width in pixels")
	height := fs.Int("height", 0, "Frame height in pixels")
	frameRate := fs.Int("fps", 0, "Playback frame rate hint stored in the artifact")
	quality := fs.String("quality", "medium", "Encoder quality preset (low, medium, high)")
	rendererURL := fs.String("renderer", "", "Websocket URL of an external frame renderer (default: built-in block renderer)")
	proxyAddr := fs.String("proxy", "", "Proxy for the renderer connection (http, https or socks5 URL)")
	dbAddr := fs.String("db", "", "Record the export in this database")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: chatreel export [-o out.gif] <script>")
	}

	var container *store.Container
	if *dbAddr != "" {
		var err error
		container, err = openStore(ctx, *dbAddr)
		if err != nil {
			return err
		}
		defer func() {
			_ = container.Close()
		}()
	}

	msgs, scriptID, err := resolveExportScript(ctx, fs.Arg(0), container)
	if err != nil {
		return err
	}

	cfg := types.ExportConfig{
		Width:     *width,
		Height:    *height,
		FrameRate: *frameRate,
		Quality:   types.ParseQuality(*quality),
	}
	if *output != "" {
		cfg.Filename = filepath.Base(*output)
	}
	err = cfg.Normalize()
	if err != nil {
		return err
	}

	var src chatreel.FrameSource
	if *rendererURL != "" {
		remote := render.NewRemote(*rendererURL, render.RemoteOptions{
			Log:     log,
			Width:   cfg.Width,
			Height:  cfg.Height,
			Timeout: 30 * time.Second,
		})
		if *proxyAddr != "" {
			err = remote.SetProxyAddress(*proxyAddr)
			if err != nil {
				return err
			}
		}
		err = remote.Connect(ctx)
		if err != nil {
			return err
		}
		defer func() {
			_ = remote.Close()
		}()
		src = remote
	} else {
		src = render.NewBlocks(msgs, cfg.Width, cfg.Height)
	}

	player := chatreel.NewPlayer(chatreel.PlayerConfig{Log: log})
	player.SetMessages(msgs)

	result, err := player.Export(ctx, src, cfg, func(progress types.ExportProgress) {
		fmt.Fprintf(os.Stderr, "\r%-10s %3.0f%% (%d/%d frames)   ", progress.Phase, progress.Percentage, progress.CurrentFrame, progress.TotalFrames)
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	outPath := *output
	if outPath == "" {
		outPath = result.Filename
	}
	err = os.WriteFile(outPath, result.Data, 0o644)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d bytes, %d frames) in %s\n", outPath, result.Size, result.FrameCount, result.Elapsed.Round(time.Millisecond))

	if container != nil {
		err = container.RecordExport(ctx, &store.ExportRecord{
			ScriptID:      scriptID,
			Filename:      filepath.Base(outPath),
			ByteSize:      result.Size,
			FrameCount:    result.FrameCount,
			TotalDuration: player.Timeline().TotalDuration(),
			EncodeTime:    result.Elapsed,
		})
		if err != nil {
			return fmt.Errorf("failed to record export: %w", err)
		}
	}
	return nil
}

// resolveExportScript loads the export source from a file, falling back to a
// saved script of that name when a database is available.
func resolveExportScript(ctx context.Context, source string, container *store.Container) ([]types.Message, uuid.UUID, error) {
	if _, statErr := os.Stat(source); statErr == nil || container == nil {
		msgs, err := loadScript(source)
		return msgs, uuid.Nil, err
	}
	saved, err := container.GetScript(ctx, source)
	if err != nil {
		return nil, uuid.Nil, err
	}
	parsed, err := saved.Parse()
	if err != nil {
		return nil, uuid.Nil, err
	}
	msgs := parsed.Messages()
	if len(msgs) == 0 {
		return nil, uuid.Nil, fmt.Errorf("saved script %s contains no messages", source)
	}
	return msgs, saved.ID, nil
}

func runScripts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scripts", flag.ExitOnError)
	dbAddr := fs.String("db", "chatreel.db", "Database address (SQLite file path or postgres:// URL)")
	limit := fs.Int("limit", 0, "Maximum number of history entries to show")
	_ = fs.Parse(args)

	container, err := openStore(ctx, *dbAddr)
	if err != nil {
		return err
	}
	defer func() {
		_ = container.Close()
	}()

	action := "list"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}
	switch action {
	case "list":
		return listScripts(ctx, container)
	case "save":
		if fs.NArg() != 3 {
			return errors.New("usage: chatreel scripts save <name> <file>")
		}
		return saveScript(ctx, container, fs.Arg(1), fs.Arg(2))
	case "show":
		if fs.NArg() != 2 {
			return errors.New("usage: chatreel scripts show <name>")
		}
		saved, err := container.GetScript(ctx, fs.Arg(1))
		if err != nil {
			return err
		}
		fmt.Print(saved.Body)
		if !strings.HasSuffix(saved.Body, "\n") {
			fmt.Println()
		}
		return nil
	case "delete":
		if fs.NArg() != 2 {
			return errors.New("usage: chatreel scripts delete <name>")
		}
		err = container.DeleteScript(ctx, fs.Arg(1))
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", fs.Arg(1))
		return nil
	case "history":
		return listExports(ctx, container, *limit)
	default:
		return fmt.Errorf("unknown scripts action %q", action)
	}
}

func listScripts(ctx context.Context, container *store.Container) error {
	scripts, err := container.ListScripts(ctx)
	if err != nil {
		return err
	}
	if len(scripts) == 0 {
		fmt.Println("No saved scripts")
		return nil
	}
	fmt.Println("NAME                  FORMAT  MESSAGES  UPDATED")
	for _, saved := range scripts {
		count := "?"
		if parsed, err := saved.Parse(); err == nil {
			count = fmt.Sprintf("%d", len(parsed.Messages()))
		}
		fmt.Printf("%-20s  %-6s  %8s  %s\n", saved.Name, saved.Format, count, saved.UpdatedAt.Format(time.DateTime))
	}
	return nil
}

func saveScript(ctx context.Context, container *store.Container, name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	format := script.FormatForPath(path)
	if format == "" {
		format = script.Sniff(data)
	}
	parsed, err := script.Parse(data, format)
	if err != nil {
		return err
	}
	if len(parsed.Messages()) == 0 {
		return fmt.Errorf("script %s contains no messages", path)
	}
	saved, err := container.PutScript(ctx, name, format, string(data))
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s (%s, %d messages)\n", saved.Name, saved.Format, len(parsed.Messages()))
	return nil
}

func listExports(ctx context.Context, container *store.Container, limit int) error {
	records, err := container.ListExports(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No exports recorded")
		return nil
	}
	fmt.Println("CREATED              FILENAME                    SIZE  FRAMES  DURATION  ENCODE")
	for _, rec := range records {
		fmt.Printf(
			"%s  %-24s  %6d  %6d  %7.1fs  %6s\n",
			rec.CreatedAt.Format(time.DateTime), rec.Filename, rec.ByteSize, rec.FrameCount,
			rec.TotalDuration.Seconds(), rec.EncodeTime.Round(time.Millisecond),
		)
	}
	return nil
}
