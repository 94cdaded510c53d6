package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"messenger/internal/dto"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "sync-user":
		err = runSyncUser(args, os.Stdout)
	case "sweep":
		err = runSweep(args, os.Stdout)
	case "login":
		err = runLogin(args, os.Stdout)
	case "request-activation":
		err = runRequestActivation(args, os.Stdout)
	default:
		usage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  sync-user            Reconcile one user by external uid or email")
	fmt.Fprintln(os.Stderr, "  sweep                Run both drift sweeps now")
	fmt.Fprintln(os.Stderr, "  login                Sign in and print the bearer and refresh tokens")
	fmt.Fprintln(os.Stderr, "  request-activation   Ask for an account activation link")
	os.Exit(2)
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	baseURL := fs.String("base-url", getenv("MESSENGERCTL_BASE_URL", "http://localhost:8080"), "messenger base URL")
	return fs, baseURL
}

func runSyncUser(args []string, out io.Writer) error {
	fs, baseURL := newFlagSet("sync-user")
	target := fs.String("user", "", "external uid or email")
	key := fs.String("admin-key", os.Getenv("ADMIN_SYNC_KEY"), "admin sync key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*target) == "" {
		return fmt.Errorf("user is required")
	}
	var res dto.SyncUserResponse
	if err := postJSON(*baseURL, "/v1/admin/sync-user", dto.SyncUserRequest{UIDOrEmail: *target, AdminKey: *key}, &res); err != nil {
		return err
	}
	return printJSON(out, res)
}

func runSweep(args []string, out io.Writer) error {
	fs, baseURL := newFlagSet("sweep")
	key := fs.String("admin-key", os.Getenv("ADMIN_SYNC_KEY"), "admin sync key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var reports []dto.SweepReport
	if err := postJSON(*baseURL, "/v1/admin/sweep", dto.AdminKeyRequest{AdminKey: *key}, &reports); err != nil {
		return err
	}
	return printJSON(out, reports)
}

func runLogin(args []string, out io.Writer) error {
	fs, baseURL := newFlagSet("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("MESSENGERCTL_PASSWORD"), "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("email and password are required")
	}
	var res dto.LoginResponse
	if err := postJSON(*baseURL, "/v1/users/login", dto.LoginRequest{Email: *email, Password: *password}, &res); err != nil {
		return err
	}
	return printJSON(out, res)
}

func runRequestActivation(args []string, out io.Writer) error {
	fs, baseURL := newFlagSet("request-activation")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("email is required")
	}
	var res dto.MessageResponse
	if err := postJSON(*baseURL, "/v1/users/request-enable-account", dto.EmailRequest{Email: *email}, &res); err != nil {
		return err
	}
	return printJSON(out, res)
}

func postJSON(baseURL, path string, payload, dst any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 2 * time.Minute}
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(baseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close response body: %v\n", cerr)
		}
	}()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		if len(data) == 0 {
			data = []byte(resp.Status)
		}
		return fmt.Errorf("%s failed: %s", path, strings.TrimSpace(string(data)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
