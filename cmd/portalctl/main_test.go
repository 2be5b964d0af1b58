package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coffeestaff/portal/internal/config"
	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/testbackend"
)

func ptr(s string) *string { return &s }

type harness struct {
	t   *testing.T
	b   *testbackend.Backend
	a   *app
	out *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := testbackend.New()
	t.Cleanup(b.Close)
	b.AddCompany(models.Company{CompanyID: "c1", CompanyName: "Bean There"})
	b.AddObject("c1", "company_images/company_c1/drinks/", 0)
	b.AddImage(models.Image{ImageID: "img1", CompanyID: "c1", FilePath: "company_images/company_c1/", FileName: "latte.png", Size: 2048})
	b.AddUser("admin", testbackend.User{ID: "u1", Password: "pw", Roles: []models.RoleRecord{
		{CompanyID: ptr("c1"), Role: models.RoleAdmin},
	}})

	dir := t.TempDir()
	in, err := os.Create(filepath.Join(dir, "stdin"))
	if err != nil {
		t.Fatal(err)
	}
	in.WriteString("pw\n")
	in.Seek(0, 0)
	t.Cleanup(func() { in.Close() })

	cfg := config.DefaultCLI()
	cfg.BackendURL = b.URL()
	cfg.Timeout = 5 * time.Second
	cfg.StatePath = filepath.Join(dir, "state.db")
	cfg.LogLevel = "error"

	out := &bytes.Buffer{}
	a := &app{cfg: cfg, out: out, in: in}
	t.Cleanup(a.close)
	return &harness{t: t, b: b, a: a, out: out}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	h.out.Reset()
	err := rootCommand().execute(context.Background(), h.a, args)
	return h.out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	if err != nil {
		h.t.Fatalf("portalctl %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestLoginSelectAndBrowse(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("login", "--username", "admin")
	if !strings.Contains(out, "c1:"+string(models.RoleAdmin)) {
		t.Errorf("login should list the options to choose from:\n%s", out)
	}

	if _, err := h.run("folders", "ls"); err == nil || !strings.Contains(err.Error(), "portalctl select") {
		t.Errorf("folders ls before select = %v", err)
	}

	h.mustRun("select", "c1:"+string(models.RoleAdmin))
	if out := h.mustRun("status"); !strings.Contains(out, "Bean There") {
		t.Errorf("status:\n%s", out)
	}

	out = h.mustRun("folders", "ls")
	if !strings.Contains(out, "drinks/") || !strings.Contains(out, "latte.png") || !strings.Contains(out, "2.0 kB") {
		t.Errorf("folders ls:\n%s", out)
	}

	h.mustRun("folders", "mkdir", "food")
	if _, ok := h.b.Objects("c1")["company_images/company_c1/food/"]; !ok {
		t.Error("mkdir did not create the folder marker")
	}

	h.mustRun("images", "mv", "img1", "--to", "/food")
	if img, _ := h.b.Image("img1"); img.FilePath != "company_images/company_c1/food/" {
		t.Errorf("img1 moved to %q", img.FilePath)
	}

	out = h.mustRun("folders", "cd", "food")
	if strings.TrimSpace(out) != "/food/" {
		t.Errorf("cd printed %q", out)
	}
	if out := h.mustRun("images", "ls"); !strings.Contains(out, "img1") {
		t.Errorf("images ls in food:\n%s", out)
	}
	if out := h.mustRun("folders", "tree"); !strings.Contains(out, "food") {
		t.Errorf("tree:\n%s", out)
	}
}

func TestDestructiveCommandsNeedConfirmation(t *testing.T) {
	h := newHarness(t)
	h.mustRun("login", "--username", "admin")
	h.mustRun("select", "c1:"+string(models.RoleAdmin))

	if _, err := h.run("folders", "rm", "drinks"); err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Fatalf("rm without --yes = %v", err)
	}
	if _, ok := h.b.Objects("c1")["company_images/company_c1/drinks/"]; !ok {
		t.Fatal("folder deleted without confirmation")
	}

	h.mustRun("folders", "rm", "drinks", "--yes")
	if _, ok := h.b.Objects("c1")["company_images/company_c1/drinks/"]; ok {
		t.Error("folder still present after rm --yes")
	}

	h.b.FailImage("img1", 500)
	if _, err := h.run("images", "rm", "img1", "-y"); err != errReported {
		t.Errorf("failed delete = %v, want errReported", err)
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.mustRun("login", "--username", "admin")
	h.mustRun("logout")

	// A fresh invocation reads the state database again.
	h.a = &app{cfg: h.a.cfg, out: h.out, in: h.a.in}
	t.Cleanup(h.a.close)
	if out := h.mustRun("status"); !strings.Contains(out, "Not logged in") {
		t.Errorf("status after logout:\n%s", out)
	}
}

func TestSessionSurvivesInvocations(t *testing.T) {
	h := newHarness(t)
	h.mustRun("login", "--username", "admin")
	h.mustRun("select", "c1:"+string(models.RoleAdmin))
	h.a.close()

	h.a = &app{cfg: h.a.cfg, out: h.out, in: h.a.in}
	t.Cleanup(h.a.close)
	if out := h.mustRun("images", "ls"); !strings.Contains(out, "latte.png") {
		t.Errorf("images ls in a new invocation:\n%s", out)
	}
}

func TestBadPassword(t *testing.T) {
	h := newHarness(t)
	h.a.in.Truncate(0)
	h.a.in.Seek(0, 0)
	h.a.in.WriteString("nope\n")
	h.a.in.Seek(0, 0)
	if _, err := h.run("login", "-u", "admin"); err == nil || err.Error() != "incorrect username or password" {
		t.Errorf("login with a bad password = %v", err)
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run("frobnicate"); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("unknown command = %v", err)
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want models.RoleKind
		ok   bool
	}{
		{"admin", models.RoleAdmin, true},
		{"Moderator", models.RoleModerator, true},
		{"superadmin", models.RoleSuperAdmin, true},
		{string(models.RoleUser), models.RoleUser, true},
		{"barista", "", false},
	}
	for _, tt := range tests {
		got, err := parseRole(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("parseRole(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestImagesDownload(t *testing.T) {
	h := newHarness(t)
	h.mustRun("login", "--username", "admin")
	h.mustRun("select", "c1:"+string(models.RoleAdmin))

	dir := filepath.Join(t.TempDir(), "saved")
	out := h.mustRun("images", "download", "img1", "--dir", dir)
	if !strings.Contains(out, "latte.png") {
		t.Errorf("download printed:\n%s", out)
	}
	data, err := os.ReadFile(filepath.Join(dir, "latte.png"))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "content-img1" {
		t.Errorf("saved content = %q", data)
	}

	h.b.FailPath("/objects/img1", 500)
	if _, err := h.run("images", "download", "img1", "--dir", dir); err != errReported {
		t.Errorf("failed download err = %v, want errReported", err)
	}
}
