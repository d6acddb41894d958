package module

import "testing"

type runner interface{ Run() string }
type checker interface{ Check() string }

type impl struct{}

func (impl) Run() string { return "run" }

type bundle struct {
	Runner runner
	hidden checker
}

type fakeMod struct{ p any }

func (f fakeMod) Ports() any   { return f.p }
func (f fakeMod) Name() string { return "fake" }

func TestPortsOf(t *testing.T) {
	t.Parallel()
	if r, ok := PortsOf[runner](fakeMod{p: impl{}}); !ok || r.Run() != "run" {
		t.Fatalf("direct implement not found")
	}
	if r, ok := PortsOf[runner](fakeMod{p: &bundle{Runner: impl{}}}); !ok || r.Run() != "run" {
		t.Fatalf("field not found")
	}
	if _, ok := PortsOf[checker](fakeMod{p: bundle{}}); ok {
		t.Fatalf("unexported or nil field should not match")
	}
	if _, ok := PortsOf[runner](fakeMod{}); ok {
		t.Fatalf("nil ports should not match")
	}
}

func TestMustPortsOfPanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	MustPortsOf[checker](fakeMod{p: bundle{}})
}
