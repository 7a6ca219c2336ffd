// ABOUTME: Admin CLI for toolweave backend status and management
// ABOUTME: Displays the default workspace, connected identities, and triggers resets

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

type Identity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WorkspaceID string `json:"workspaceId"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Hostname    string `json:"hostname"`
	LastSeenAt  string `json:"lastSeenAt"`
	Alive       bool   `json:"alive"`
}

type Workspace struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
	CreatedAt string `json:"createdAt"`
}

type ResetResult struct {
	Workspace Workspace `json:"workspace"`
}

func main() {
	backendURL := flag.String("backend", getEnv("TOOLWEAVE_ADMIN_HTTP", "http://localhost:8420"), "Backend admin HTTP URL")
	watch := flag.Bool("watch", false, "Continuously watch backend status")
	interval := flag.Duration("interval", 2*time.Second, "Watch interval (with -watch)")
	flag.Parse()

	baseURL := strings.TrimSuffix(*backendURL, "/")

	if flag.NArg() > 0 && flag.Arg(0) == "reset" {
		reason := "admin CLI"
		if flag.NArg() > 1 {
			reason = strings.Join(flag.Args()[1:], " ")
		}
		if err := runReset(baseURL, reason); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *watch {
		runWatch(baseURL, *interval)
		return
	}

	printStatus(baseURL)
}

func printStatus(baseURL string) {
	printHealth(baseURL)
	fmt.Println()
	printWorkspace(baseURL)
	fmt.Println()
	printIdentities(baseURL)
	fmt.Println()
}

func runWatch(baseURL string, interval time.Duration) {
	// Clear screen and hide cursor
	fmt.Print("\033[2J\033[H\033[?25l")
	defer fmt.Print("\033[?25h") // Show cursor on exit

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// Move cursor to top
		fmt.Print("\033[H")
		printStatus(baseURL)
		fmt.Printf("  [watching every %v - press Ctrl+C to stop]\n", interval)

		<-ticker.C
	}
}

func printHealth(baseURL string) {
	fmt.Println("  Health")
	fmt.Println("  ------")

	resp, err := http.Get(baseURL + "/healthz")
	if err != nil {
		color.Red("  Backend:  UNREACHABLE (%v)", err)
		return
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		fmt.Printf("  Backend:  %s\n", color.GreenString("OK"))
	} else {
		fmt.Printf("  Backend:  %s\n", color.RedString("ERROR (status %d)", resp.StatusCode))
	}

	resp, err = http.Get(baseURL + "/readyz")
	if err != nil {
		fmt.Printf("  Ready:    UNKNOWN\n")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		fmt.Printf("  Ready:    %s\n", color.GreenString("ready"))
	} else {
		fmt.Printf("  Ready:    %s\n", color.YellowString("NOT READY"))
	}
}

func printWorkspace(baseURL string) {
	fmt.Println("  Default Workspace")
	fmt.Println("  -----------------")

	resp, err := http.Get(baseURL + "/admin/workspace")
	if err != nil {
		fmt.Printf("  Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Println("  (no default workspace)")
		return
	}

	var ws Workspace
	if err := json.NewDecoder(resp.Body).Decode(&ws); err != nil {
		fmt.Printf("  Error decoding response: %v\n", err)
		return
	}

	created := ws.CreatedAt
	if t, err := time.Parse(time.RFC3339, ws.CreatedAt); err == nil {
		created = t.Format("Jan 02 15:04")
	}
	fmt.Printf("  ID:       %s\n", ws.ID)
	fmt.Printf("  Created:  %s\n", created)
}

func printIdentities(baseURL string) {
	fmt.Println("  Identities")
	fmt.Println("  ----------")

	resp, err := http.Get(baseURL + "/admin/identities")
	if err != nil {
		fmt.Printf("  Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var identities []Identity
	if err := json.NewDecoder(resp.Body).Decode(&identities); err != nil {
		fmt.Printf("  Error decoding response: %v\n", err)
		return
	}

	if len(identities) == 0 {
		fmt.Println("  (no identities in the default workspace)")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tKIND\tHOST\tLIVENESS\tLAST SEEN")
	fmt.Fprintln(w, "  --\t----\t----\t----\t--------\t---------")
	for _, ident := range identities {
		liveness := color.RedString("stale")
		if ident.Alive {
			liveness = color.GreenString("alive")
		}
		// Truncate long IDs for display
		id := ident.ID
		if len(id) > 24 {
			id = id[:21] + "..."
		}
		lastSeen := ident.LastSeenAt
		if t, err := time.Parse(time.RFC3339, ident.LastSeenAt); err == nil {
			lastSeen = t.Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n", id, ident.Name, ident.Kind, ident.Hostname, liveness, lastSeen)
	}
	w.Flush()
}

func runReset(baseURL, reason string) error {
	body, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return err
	}

	resp, err := http.Post(baseURL+"/admin/reset", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("reset request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reset failed: status %d", resp.StatusCode)
	}

	var result ResetResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	color.Green("reset complete")
	fmt.Printf("new default workspace: %s\n", result.Workspace.ID)
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
