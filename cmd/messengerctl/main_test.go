package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"messenger/internal/dto"
)

func TestRunSyncUserPostsAdminKey(t *testing.T) {
	var got dto.SyncUserRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/admin/sync-user" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(dto.SyncUserResponse{Status: dto.SyncStatusOK, Action: dto.SyncActionLinked, Message: "linked"})
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := runSyncUser([]string{"-base-url", srv.URL, "-user", "a@example.com", "-admin-key", "k"}, &out)
	if err != nil {
		t.Fatalf("runSyncUser: %v", err)
	}
	if got.UIDOrEmail != "a@example.com" || got.AdminKey != "k" {
		t.Fatalf("unexpected request %+v", got)
	}
	if !strings.Contains(out.String(), `"action": "linked"`) {
		t.Fatalf("unexpected output %s", out.String())
	}
}

func TestRunSyncUserRequiresTarget(t *testing.T) {
	if err := runSyncUser([]string{"-admin-key", "k"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error without -user")
	}
}

func TestRunSweepSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"kind":"unauthorized","message":"Invalid admin key"}}`))
	}))
	defer srv.Close()

	err := runSweep([]string{"-base-url", srv.URL, "-admin-key", "wrong"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "Invalid admin key") {
		t.Fatalf("expected admin key error, got %v", err)
	}
}
