// client talks to a running station daemon over the local API.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/harrylevesque/scanfulfill/internal/config"
)

// Default station base URL; override with STATION_URL or --server.
var serverBaseURL = "http://127.0.0.1:8787"

type client struct {
	base  string
	token string
	http  *http.Client
	out   io.Writer
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		cmd      string
		text     string
		id       string
		decision string
		server   string
		token    string
		set      map[string]string
	)
	flagSet := pflag.NewFlagSet("client", pflag.ContinueOnError)
	flagSet.StringVar(&cmd, "cmd", "status", "Command: scan|reset|status|watch|pending|confirm|settings")
	flagSet.StringVar(&text, "text", "", "scanned text (scan)")
	flagSet.StringVar(&id, "id", "", "confirmation id (confirm)")
	flagSet.StringVar(&decision, "decision", "", "confirm or cancel (confirm)")
	flagSet.StringToStringVar(&set, "set", nil, "settings to change, e.g. --set volunteerCode=V42 (settings)")
	flagSet.StringVar(&server, "server", "", "station base URL")
	flagSet.StringVar(&token, "token", os.Getenv("STATION_TOKEN"), "station API token")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	base := serverBaseURL
	if env := os.Getenv("STATION_URL"); env != "" {
		base = env
	}
	if server != "" {
		base = server
	}
	c := &client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
		out:   os.Stdout,
	}

	switch cmd {
	case "scan":
		if text == "" {
			return errors.New("--text required")
		}
		return c.call(http.MethodPost, "/scan", map[string]string{"text": text})
	case "reset":
		return c.call(http.MethodPost, "/reset", nil)
	case "status":
		return c.call(http.MethodGet, "/status", nil)
	case "watch":
		c.http.Timeout = 0
		return c.watch()
	case "pending":
		return c.call(http.MethodGet, "/confirmations", nil)
	case "confirm":
		if id == "" || decision == "" {
			return errors.New("--id and --decision required")
		}
		return c.call(http.MethodPost, "/confirmations/"+id, map[string]string{"decision": decision})
	case "settings":
		if len(set) == 0 {
			return c.call(http.MethodGet, "/settings", nil)
		}
		if err := checkKeys(set); err != nil {
			return err
		}
		return c.call(http.MethodPut, "/settings", set)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func checkKeys(set map[string]string) error {
	valid := make(map[string]bool)
	for _, k := range config.Keys {
		valid[k] = true
	}
	var bad []string
	for k := range set {
		if !valid[k] {
			bad = append(bad, k)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return fmt.Errorf("unknown settings %s (valid: %s)", strings.Join(bad, ", "), strings.Join(config.Keys, ", "))
	}
	return nil
}

func (c *client) request(method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.http.Do(req)
}

// call prints the response body indented. Non-2xx responses are errors
// carrying the station's message.
func (c *client) call(method, path string, payload any) error {
	resp, err := c.request(method, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(b, &e) == nil && e.Message != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, e.Message)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, b, "", "  ") != nil {
		_, err = c.out.Write(b)
		return err
	}
	pretty.WriteByte('\n')
	_, err = pretty.WriteTo(c.out)
	return err
}

// watch prints each status change until the station closes the stream.
func (c *client) watch() error {
	resp, err := c.request(http.MethodGet, "/status/stream", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	lines := bufio.NewScanner(resp.Body)
	for lines.Scan() {
		var v struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(lines.Bytes(), &v); err != nil {
			return fmt.Errorf("decoding stream: %w", err)
		}
		fmt.Fprintf(c.out, "%s %s\n", time.Now().Format(time.TimeOnly), v.Status)
	}
	return lines.Err()
}
