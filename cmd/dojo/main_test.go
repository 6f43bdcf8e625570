package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/DannyMichaels/code-dojo-app/internal/belt"
	"github.com/DannyMichaels/code-dojo-app/pkg/config"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

func TestBeltRequirementsCommand(t *testing.T) {
	cmd := newBeltRequirementsCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var table map[models.Belt]belt.Requirement
	if err := json.Unmarshal(out.Bytes(), &table); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(table) != len(models.BeltOrder)-1 {
		t.Errorf("got %d belts, want %d", len(table), len(models.BeltOrder)-1)
	}

	out.Reset()
	cmd = newBeltRequirementsCommand()
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "white") || !strings.Contains(out.String(), "yellow") {
		t.Errorf("table output missing belts:\n%s", out.String())
	}
}

func TestHashKeyCommand(t *testing.T) {
	cmd := newAuthCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("a-long-enough-api-key\n"))
	cmd.SetArgs([]string{"hash-key"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("a-long-enough-api-key")); err != nil {
		t.Errorf("printed hash does not match the key: %v", err)
	}
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	cmd := newAuthCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--user", "u-1"})
	if err := cmd.Execute(); err == nil {
		t.Error("token issued without a configured secret")
	}

	t.Setenv("DOJO_SECURITY_JWT_SECRET", "s3cret")
	var out bytes.Buffer
	cmd = newAuthCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--user", "u-1"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if strings.Count(strings.TrimSpace(out.String()), ".") != 2 {
		t.Errorf("output %q is not a JWT", out.String())
	}
}

func TestBuildApp_Memory(t *testing.T) {
	cfg := config.Default()
	a, err := buildApp(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("buildApp() error = %v", err)
	}
	defer a.Close()

	e, err := a.svc.Enroll(context.Background(), "u-1", "Go")
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if e.Session.Type != models.SessionTypeOnboarding {
		t.Errorf("first session type = %q, want onboarding", e.Session.Type)
	}
	if err := a.watchdog.Healthy(context.Background()); err != nil {
		t.Errorf("Healthy() error = %v", err)
	}
	if report, _ := a.watchdog.Last(); len(report.Checks) != 0 {
		t.Errorf("memory store registered checks %v", report.Checks)
	}
}

func TestBuildApp_SQLiteWithDatabaseLocks(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = t.TempDir() + "/dojo.db"
	cfg.Lock.Backend = "database"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	a, err := buildApp(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("buildApp() error = %v", err)
	}
	defer a.Close()
	report := a.watchdog.Check(context.Background())
	if report.Checks["database"] != "ok" {
		t.Errorf("database check = %q, want ok", report.Checks["database"])
	}
	a.watchdog.Sweep(context.Background())
	if _, err := a.svc.Enroll(context.Background(), "u-1", "Go"); err != nil {
		t.Errorf("Enroll() error = %v", err)
	}
}
