package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const usage = `usage: cli [flags] <command> <group> [args]

commands:
  list   <group>                         list services with their status
  add    <group> <name> <target> [port]  register a service (-kind socket|http)
  rm     <group> <name>                  remove a service
  check  <group>                         run a check now and print the events
`

func main() {
	api := flag.String("api", envOr("API_BASE", "http://localhost:8080"), "API base URL")
	key := flag.String("key", os.Getenv("API_KEY"), "API key (admin key for add, rm and check)")
	kind := flag.String("kind", "http", "transport kind for add")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()

	c := &client{base: strings.TrimRight(*api, "/"), key: *key, http: &http.Client{Timeout: 30 * time.Second}}
	if err := c.run(flag.Args(), *kind); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

type client struct {
	base string
	key  string
	http *http.Client
}

func (c *client) run(args []string, kind string) error {
	if len(args) < 2 {
		flag.Usage()
		return fmt.Errorf("missing command or group")
	}
	cmd, group := args[0], url.PathEscape(args[1])
	switch cmd {
	case "list":
		var list []struct {
			Text string `json:"text"`
		}
		if err := c.do(http.MethodGet, "/api/groups/"+group+"/services", nil, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("There is nothing to see here")
		}
		for _, s := range list {
			fmt.Println(s.Text)
			fmt.Println()
		}
	case "add":
		if len(args) < 4 {
			return fmt.Errorf("add needs <name> <target> [port]")
		}
		body := map[string]any{"name": args[2], "target": args[3], "kind": kind}
		if len(args) > 4 {
			p, err := strconv.Atoi(args[4])
			if err != nil {
				return fmt.Errorf("port: %w", err)
			}
			body["port"] = p
		}
		var out struct {
			Service struct {
				Name string `json:"name"`
			} `json:"service"`
			DNS *struct {
				Class string `json:"class"`
			} `json:"dns"`
		}
		if err := c.do(http.MethodPost, "/api/groups/"+group+"/services", body, &out); err != nil {
			return err
		}
		fmt.Printf("Added %s", out.Service.Name)
		if out.DNS != nil {
			fmt.Printf(" (dns: %s)", out.DNS.Class)
		}
		fmt.Println()
	case "rm":
		if len(args) < 3 {
			return fmt.Errorf("rm needs <name>")
		}
		if err := c.do(http.MethodDelete, "/api/groups/"+group+"/services/"+url.PathEscape(args[2]), nil, nil); err != nil {
			return err
		}
		fmt.Println("Removed", args[2])
	case "check":
		var out struct {
			Events []struct {
				Title string `json:"title"`
				Text  string `json:"text"`
			} `json:"events"`
		}
		if err := c.do(http.MethodPost, "/api/groups/"+group+"/check", nil, &out); err != nil {
			return err
		}
		if len(out.Events) == 0 {
			fmt.Println("No changes.")
		}
		for _, ev := range out.Events {
			fmt.Println(ev.Title)
			fmt.Println(ev.Text)
			fmt.Println()
		}
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func (c *client) do(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("API returned %s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("API returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
