package serverutil

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func runServer(t *testing.T, ctx context.Context, opts Options) (chan error, chan struct{}) {
	t.Helper()
	ready := make(chan struct{})
	opts.Ready = ready
	done := make(chan error, 1)
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NewServeMux()}
	go func() {
		done <- Run(ctx, srv, opts)
	}()
	return done, ready
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done, ready := runServer(t, ctx, Options{ShutdownTimeout: time.Second})

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("server did not start")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunServesTLS(t *testing.T) {
	certFile, keyFile := selfSignedKeypair(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done, ready := runServer(t, ctx, Options{
		CertFile:        certFile,
		KeyFile:         keyFile,
		ShutdownTimeout: time.Second,
	})

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("server did not start")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunRejectsPartialTLSConfig(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0"}
	if err := Run(context.Background(), srv, Options{CertFile: "cert.pem"}); err == nil {
		t.Fatal("expected cert without key to be rejected")
	}
}

func TestRunReportsListenFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() })

	srv := &http.Server{Addr: listener.Addr().String(), Handler: http.NewServeMux()}
	ready := make(chan struct{})
	if err := Run(context.Background(), srv, Options{Ready: ready}); err == nil {
		t.Fatal("expected a listen failure on an occupied port")
	}
	select {
	case <-ready:
		t.Fatal("readiness signalled despite listen failure")
	default:
	}
}

func selfSignedKeypair(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certPath, keyPath
}
