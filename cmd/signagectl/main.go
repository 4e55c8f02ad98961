package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
)

func main() {
	baseURL := flag.String("server", envOr("SIGNAGE_STATUS_URL", "http://127.0.0.1:8765"), "URL de l'API locale de l'agent")
	timeout := flag.Duration("timeout", 10*time.Second, "Timeout HTTP")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	client := &http.Client{Timeout: *timeout}

	switch args[0] {
	case "health":
		run(client, *baseURL+"/api/v1/health")
	case "version":
		run(client, *baseURL+"/api/v1/version")
	case "status":
		run(client, *baseURL+"/api/v1/status")
	case "syncs":
		u := *baseURL + "/api/v1/syncs"
		if len(args) > 1 {
			u += "?limit=" + url.QueryEscape(args[1])
		}
		run(client, u)
	case "sync":
		if len(args) < 2 {
			usage()
		}
		run(client, *baseURL+"/api/v1/syncs/"+url.PathEscape(args[1]))
	case "events":
		q := url.Values{}
		for _, topic := range args[1:] {
			q.Add("topic", topic)
		}
		u := *baseURL + "/api/v1/events"
		if len(q) > 0 {
			u += "?" + q.Encode()
		}
		follow(u)
	default:
		fmt.Fprintln(os.Stderr, "Commande inconnue:", args[0])
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: signagectl [health|version|status|syncs [limit]|sync <id>|events [topic...]]")
	os.Exit(2)
}

func run(client *http.Client, u string) {
	resp, err := client.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Erreur:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	var pretty any
	if err := json.Unmarshal(b, &pretty); err == nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(pretty)
	} else {
		os.Stdout.Write(b)
		os.Stdout.Write([]byte("\n"))
	}
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

// follow affiche le flux SSE (une ligne par évènement) jusqu'à Ctrl-C.
func follow(u string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Erreur:", err)
		os.Exit(2)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Erreur:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		fmt.Fprintln(os.Stderr, "Erreur: status", resp.StatusCode)
		os.Exit(1)
	}

	sc := bufio.NewScanner(resp.Body)
	var topic string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			topic = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if topic != "ping" {
				fmt.Printf("%s %s %s\n", time.Now().Format(time.TimeOnly), topic, strings.TrimPrefix(line, "data: "))
			}
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
