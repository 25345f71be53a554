package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const verifiedBody = `{
	"status": "1",
	"message": "OK",
	"result": [{
		"SourceCode": "pragma solidity ^0.8.0; contract Token {}",
		"ContractName": "Token",
		"CompilerVersion": "v0.8.24+commit.e11b9ed9",
		"OptimizationUsed": "1",
		"Runs": "200"
	}]
}`

func newRegistry(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("action"); got != "getsourcecode" {
			t.Fatalf("unexpected action %q", got)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestLookupVerified(t *testing.T) {
	t.Parallel()

	server := newRegistry(t, http.StatusOK, verifiedBody)
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	record, err := client.Lookup(context.Background(), "0x000000000000000000000000000000000000dead")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if record == nil {
		t.Fatal("expected a record")
	}
	if !record.SourceAvailable || record.ContractName != "Token" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if !record.OptimizationEnabled || record.Runs != 200 {
		t.Fatalf("unexpected optimization fields: %+v", record)
	}
}

func TestLookupAbsentCases(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"unverified source", http.StatusOK, `{"status":"1","message":"OK","result":[{"SourceCode":"","ABI":"Contract source code not verified"}]}`},
		{"api error status", http.StatusOK, `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`},
		{"empty result list", http.StatusOK, `{"status":"1","message":"OK","result":[]}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			server := newRegistry(t, tc.status, tc.body)
			defer server.Close()

			client := NewClient(Config{BaseURL: server.URL})
			record, err := client.Lookup(context.Background(), "0x000000000000000000000000000000000000dead")
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if record != nil {
				t.Fatalf("expected no record, got %+v", record)
			}
		})
	}
}

func TestLookupTransportFailure(t *testing.T) {
	t.Parallel()

	server := newRegistry(t, http.StatusInternalServerError, "boom")
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	record, err := client.Lookup(context.Background(), "0x000000000000000000000000000000000000dead")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if record != nil {
		t.Fatalf("expected no record, got %+v", record)
	}
}

func TestLookupTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(200 * time.Millisecond):
		}
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Timeout: 20 * time.Millisecond})
	record, err := client.Lookup(context.Background(), "0x000000000000000000000000000000000000dead")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if record != nil {
		t.Fatalf("expected no record, got %+v", record)
	}
}
