// replayctl is the control CLI for replayd. It spawns the host binary
// and speaks the same framed protocol the browser extension does, so
// every command path it exercises is the production one.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"replayd/internal/config"
	"replayd/internal/protocol"
	"replayd/internal/script"
	"replayd/internal/transport"
)

var (
	configPath = flag.String("config", "", "path to config file")
	hostPath   = flag.String("host", "", "path to the replayd-host binary")
	timeout    = flag.Duration("timeout", 10*time.Second, "per-request timeout")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "ping":
		err = withHost(cmdPing)
	case "status":
		err = withHost(cmdStatus)
	case "record":
		err = withHost(cmdRecord)
	case "scripts":
		err = withHost(cmdScripts)
	case "show":
		err = requireArg("show <script-id>", func(id string) error {
			return withHost(func(c *session) error { return cmdShow(c, id) })
		})
	case "delete":
		err = requireArg("delete <script-id>", func(id string) error {
			return withHost(func(c *session) error { return cmdDelete(c, id) })
		})
	case "play":
		err = requireArg("play <script-id>", func(id string) error {
			return withHost(func(c *session) error { return cmdPlay(c, id) })
		})
	case "export":
		err = requireArg("export <script-id>", cmdExport)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `replayctl - Control utility for replayd

Usage: replayctl [options] <command> [args]

Commands:
  ping                 Check that the host answers
  status               Show recording and playback status
  record               Record until Enter is pressed, then save
  scripts              List saved scripts
  show <id>            Print a script as JSON
  play <id>            Replay a script
  delete <id>          Delete a script
  export <id> [file]   Export a script (json or yaml by extension)
  help                 Show this help message

Options:
  -config <path>   Path to config file
  -host <path>     Path to the replayd-host binary
  -timeout <dur>   Per-request timeout (default 10s)`)
}

func requireArg(use string, fn func(string) error) error {
	if flag.NArg() < 2 {
		return fmt.Errorf("usage: replayctl %s", use)
	}
	return fn(flag.Arg(1))
}

// session is a live connection to a spawned host process.
type session struct {
	client *transport.Client
	cmd    *exec.Cmd
}

// withHost spawns the host, runs fn against it, and tears the process
// down by closing its stdin (the host exits cleanly on EOF).
func withHost(fn func(*session) error) error {
	bin := *hostPath
	if bin == "" {
		// Default to a sibling of this binary.
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate host binary: %w", err)
		}
		bin = filepath.Join(filepath.Dir(self), "replayd-host")
	}

	cmd := exec.Command(bin)
	if *configPath != "" {
		cmd.Args = append(cmd.Args, "-config", *configPath)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("host stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("host stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start host %s: %w", bin, err)
	}

	client := transport.NewClient(stdout, stdin, *timeout, nil)
	s := &session{client: client, cmd: cmd}

	runErr := fn(s)

	client.Close()
	stdin.Close()
	cmd.Wait()

	return runErr
}

// call sends one command and fails on an ERROR status.
func (s *session) call(command string, params map[string]any) (*protocol.Response, error) {
	resp, err := s.client.Call(context.Background(), command, params)
	if err != nil {
		return nil, err
	}
	if resp.Status != protocol.StatusSuccess {
		return nil, fmt.Errorf("%s: %s", command, resp.Error)
	}
	return resp, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdPing(s *session) error {
	start := time.Now()
	resp, err := s.call(protocol.CmdPing, nil)
	if err != nil {
		return err
	}
	fmt.Printf("host answered in %v\n", time.Since(start).Round(time.Millisecond))
	return printJSON(resp.Data)
}

func cmdStatus(s *session) error {
	resp, err := s.call(protocol.CmdGetStatus, nil)
	if err != nil {
		return err
	}
	return printJSON(resp.Data)
}

// cmdRecord starts a recording, waits for Enter, stops and saves.
func cmdRecord(s *session) error {
	resp, err := s.call(protocol.CmdStartRecording, map[string]any{
		"user_id": "replayctl",
	})
	if err != nil {
		return err
	}
	data, _ := resp.Data.(map[string]any)
	fmt.Printf("Recording session %v. Press Enter to stop.\n", data["sessionId"])

	fmt.Scanln()

	resp, err = s.call(protocol.CmdStopRecording, nil)
	if err != nil {
		return err
	}
	return printJSON(resp.Data)
}

func cmdScripts(s *session) error {
	resp, err := s.call(protocol.CmdListScripts, nil)
	if err != nil {
		return err
	}
	data, _ := resp.Data.(map[string]any)
	scripts, _ := data["scripts"].([]any)
	if len(scripts) == 0 {
		fmt.Println("No scripts saved.")
		return nil
	}

	fmt.Printf("%-38s %-24s %8s %10s\n", "ID", "NAME", "ACTIONS", "DURATION")
	for _, raw := range scripts {
		e, _ := raw.(map[string]any)
		fmt.Printf("%-38v %-24v %8v %9.1fs\n",
			e["id"], e["name"], e["action_count"], num(e["duration"]))
	}
	return nil
}

func cmdShow(s *session, id string) error {
	resp, err := s.call(protocol.CmdGetScript, map[string]any{"scriptId": id})
	if err != nil {
		return err
	}
	return printJSON(resp.Data)
}

func cmdDelete(s *session, id string) error {
	if _, err := s.call(protocol.CmdDeleteScript, map[string]any{"scriptId": id}); err != nil {
		return err
	}
	fmt.Println("Deleted", id)
	return nil
}

func cmdPlay(s *session, id string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	speed := fs.Float64("speed", 0, "speed factor (0 = default)")
	repeat := fs.Int("repeat", 1, "number of repetitions")
	fs.Parse(flag.Args()[2:])

	// Subscribe before starting so a short script cannot finish
	// before the event stream is on.
	if _, err := s.call(protocol.CmdSubscribeEvents, nil); err != nil {
		return err
	}

	params := map[string]any{"scriptId": id, "repeat": *repeat}
	if *speed > 0 {
		params["speed"] = *speed
	}
	if _, err := s.call(protocol.CmdStartPlayback, params); err != nil {
		return err
	}
	fmt.Println("Playback started.")

	// Follow event frames until the playback resolves.
	for resp := range s.client.Events() {
		data, _ := resp.Data.(map[string]any)
		evtType, _ := data["type"].(string)
		switch evtType {
		case "playback.progress":
			inner, _ := data["data"].(map[string]any)
			fmt.Printf("  %v/%v\n", inner["action_index"], inner["action_total"])
		case "playback.completed":
			fmt.Println("Playback completed.")
			return nil
		case "playback.stopped":
			fmt.Println("Playback stopped.")
			return nil
		case "playback.error":
			inner, _ := data["data"].(map[string]any)
			return fmt.Errorf("playback failed: %v", inner["error"])
		}
	}
	return nil
}

// cmdExport reads the script store directly; no host round trip needed
// for an offline format conversion.
func cmdExport(id string) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := script.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open script store: %w", err)
	}
	defer store.Close()

	s, err := store.Get(id)
	if err != nil {
		return err
	}

	format := "json"
	out := os.Stdout
	if flag.NArg() >= 3 {
		path := flag.Arg(2)
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			format = "yaml"
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	exp, err := script.NewExporter(format)
	if err != nil {
		return err
	}
	return exp.Export(s, out)
}

func num(v any) float64 {
	f, _ := v.(float64)
	return f
}
