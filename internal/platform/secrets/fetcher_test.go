package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubSecretClient struct {
	values map[string]string
	err    error
	calls  int
}

func (s *stubSecretClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	value, ok := s.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (s *stubSecretClient) Close() error { return nil }

func TestResolveFetchesAndCaches(t *testing.T) {
	client := &stubSecretClient{
		values: map[string]string{
			"projects/alabites-dev/secrets/paymongo-key/versions/latest": "sk_test_123",
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("alabites-dev"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	value, err := fetcher.Resolve(context.Background(), "secret://paymongo-key")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "sk_test_123" {
		t.Fatalf("unexpected value: %q", value)
	}

	if _, err := fetcher.Resolve(context.Background(), "secret://paymongo-key"); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected cached second resolve, got %d remote calls", client.calls)
	}
}

func TestResolveProjectOverrideAndVersion(t *testing.T) {
	client := &stubSecretClient{
		values: map[string]string{
			"projects/other-proj/secrets/stripe-key/versions/3": "sk_live",
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("alabites-dev"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	value, err := fetcher.Resolve(context.Background(), "secret://stripe-key?project=other-proj&version=3")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "sk_live" {
		t.Fatalf("unexpected value: %q", value)
	}
}

func TestResolveFallsBackOnPermissionDenied(t *testing.T) {
	dir := t.TempDir()
	fallbackPath := filepath.Join(dir, "secrets.local")
	if err := os.WriteFile(fallbackPath, []byte("secret://paymongo-key=sk_fallback\n"), 0o600); err != nil {
		t.Fatalf("write fallback file: %v", err)
	}

	client := &stubSecretClient{err: status.Error(codes.PermissionDenied, "denied")}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("alabites-dev"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	value, err := fetcher.Resolve(context.Background(), "secret://paymongo-key")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "sk_fallback" {
		t.Fatalf("unexpected fallback value: %q", value)
	}
}

func TestResolveRejectsUnknownScheme(t *testing.T) {
	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(&stubSecretClient{}),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	if _, err := fetcher.Resolve(context.Background(), "vault://paymongo-key"); err == nil {
		t.Fatalf("expected scheme error")
	}
}
