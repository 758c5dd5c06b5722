package screenctl_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"rpanode/internal/screen"
	"rpanode/internal/services"
	"rpanode/internal/services/screenctl"
)

type call struct {
	args  []string
	stdin string
}

type stubExecutor struct {
	calls []call
	out   map[string][]byte
	err   error
}

func (s *stubExecutor) Run(_ context.Context, binary string, args []string, stdin []byte) ([]byte, error) {
	s.calls = append(s.calls, call{args: append([]string(nil), args...), stdin: string(stdin)})
	if s.err != nil {
		return nil, s.err
	}
	return s.out[args[0]], nil
}

func newClient(t *testing.T, exec *stubExecutor) *screenctl.Client {
	t.Helper()
	client, err := screenctl.New("rpa-screen", 5, screenctl.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestNewRequiresBinary(t *testing.T) {
	if _, err := screenctl.New("  ", 5); err == nil {
		t.Fatal("expected error for empty binary")
	}
}

func TestLocateFound(t *testing.T) {
	exec := &stubExecutor{out: map[string][]byte{
		"locate": []byte(`{"found":true,"x":10,"y":20,"width":30,"height":40}` + "\n"),
	}}
	region, ok, err := newClient(t, exec).Locate(context.Background(), screen.Template{Name: "tab", Path: "/img/tab.png", Confidence: 0.8})
	if err != nil || !ok {
		t.Fatalf("Locate: ok=%v err=%v", ok, err)
	}
	if region != (screen.Region{X: 10, Y: 20, Width: 30, Height: 40}) {
		t.Fatalf("unexpected region %+v", region)
	}
	got := strings.Join(exec.calls[0].args, " ")
	if got != "locate --template /img/tab.png --confidence 0.80" {
		t.Fatalf("unexpected argv %q", got)
	}
}

func TestLocateNotFoundAndBadReply(t *testing.T) {
	exec := &stubExecutor{out: map[string][]byte{"locate": []byte(`{"found":false}`)}}
	client := newClient(t, exec)
	tmpl := screen.Template{Name: "tab", Path: "/img/tab.png", Confidence: 0.8}
	if _, ok, err := client.Locate(context.Background(), tmpl); ok || err != nil {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}

	exec.out["locate"] = []byte("garbage")
	if _, _, err := client.Locate(context.Background(), tmpl); err == nil {
		t.Fatal("expected decode error")
	}
	if _, _, err := client.Locate(context.Background(), screen.Template{Name: "blank"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for missing path, got %v", err)
	}
}

func TestInputVerbs(t *testing.T) {
	exec := &stubExecutor{}
	client := newClient(t, exec)
	ctx := context.Background()

	if err := client.Click(ctx, screen.Point{X: 5, Y: 6}); err != nil {
		t.Fatalf("Click: %v", err)
	}
	if err := client.RightClick(ctx, screen.Point{X: 7, Y: 8}); err != nil {
		t.Fatalf("RightClick: %v", err)
	}
	if err := client.Press(ctx, "down", "enter"); err != nil {
		t.Fatalf("Press: %v", err)
	}
	if err := client.Hotkey(ctx, "alt", "f4"); err != nil {
		t.Fatalf("Hotkey: %v", err)
	}
	if err := client.Paste(ctx, "s3cret"); err != nil {
		t.Fatalf("Paste: %v", err)
	}

	want := []string{
		"click --x 5 --y 6",
		"click --button right --x 7 --y 8",
		"press down enter",
		"hotkey alt f4",
		"paste",
	}
	if len(exec.calls) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(exec.calls))
	}
	for i, w := range want {
		if got := strings.Join(exec.calls[i].args, " "); got != w {
			t.Fatalf("call %d = %q, want %q", i, got, w)
		}
	}
	if exec.calls[4].stdin != "s3cret" {
		t.Fatal("paste text must travel on stdin")
	}
}

func TestInputFailureIsInjectionError(t *testing.T) {
	client := newClient(t, &stubExecutor{err: errors.New("exit status 2")})
	if err := client.Click(context.Background(), screen.Point{}); !errors.Is(err, services.ErrInjection) {
		t.Fatalf("expected ErrInjection, got %v", err)
	}
}

func TestSizeAndScreenshot(t *testing.T) {
	exec := &stubExecutor{out: map[string][]byte{
		"size":       []byte(`{"width":2560,"height":1440}`),
		"screenshot": []byte("\x89PNG\r\n\x1a\nrest"),
	}}
	client := newClient(t, exec)
	w, h, err := client.Size(context.Background())
	if err != nil || w != 2560 || h != 1440 {
		t.Fatalf("Size = %d x %d, %v", w, h, err)
	}
	png, err := client.Screenshot(context.Background())
	if err != nil || len(png) == 0 {
		t.Fatalf("Screenshot: %v", err)
	}

	exec.out["screenshot"] = []byte("not a png")
	if _, err := client.Screenshot(context.Background()); !errors.Is(err, services.ErrInjection) {
		t.Fatalf("expected ErrInjection for non-PNG output, got %v", err)
	}
}
