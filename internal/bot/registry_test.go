package bot

import (
	"context"
	"slices"
	"testing"
)

func TestRegistry_DispatchMessageNamesModule(t *testing.T) {
	r := NewRegistry()
	first := &fakeHandler{name: "mops", keyword: "今日"}
	second := &fakeHandler{name: "watchlist", keyword: "關注"}
	r.Register(first)
	r.Register(second)

	msgs, module := r.DispatchMessage(context.Background(), "關注 2330")
	if len(msgs) == 0 {
		t.Fatal("no messages returned")
	}
	if module != "watchlist" {
		t.Errorf("module = %q, want watchlist", module)
	}
	if second.lastText != "關注 2330" {
		t.Errorf("handler received %q", second.lastText)
	}

	msgs, module = r.DispatchMessage(context.Background(), "不認識的指令")
	if len(msgs) != 0 || module != "" {
		t.Errorf("unmatched dispatch = (%d msgs, %q), want none", len(msgs), module)
	}
}

func TestRegistry_DispatchOrder(t *testing.T) {
	r := NewRegistry()
	// Both claim the same text; registration order decides.
	r.Register(&fakeHandler{name: "first", keyword: "今日"})
	r.Register(&fakeHandler{name: "second", keyword: "今日"})

	_, module := r.DispatchMessage(context.Background(), "今日")
	if module != "first" {
		t.Errorf("module = %q, want first registered handler", module)
	}
}

func TestRegistry_DispatchPostbackStripsPrefix(t *testing.T) {
	r := NewRegistry()
	h := &fakeHandler{name: "mops", keyword: "今日"}
	r.Register(h)

	msgs, module := r.DispatchPostback(context.Background(), "mops:today$2330")
	if len(msgs) == 0 || module != "mops" {
		t.Fatalf("dispatch = (%d msgs, %q), want mops reply", len(msgs), module)
	}
	if h.lastText != "today$2330" {
		t.Errorf("handler received %q, want prefix stripped", h.lastText)
	}

	if msgs, module := r.DispatchPostback(context.Background(), "other:action"); len(msgs) != 0 || module != "" {
		t.Errorf("unknown prefix dispatched to %q", module)
	}
}

func TestRegistry_GetHandlerAndModules(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeHandler{name: "mops", keyword: "今日"})
	r.Register(&fakeHandler{name: "usage", keyword: "使用說明"})

	if h := r.GetHandler("usage"); h == nil || h.Name() != "usage" {
		t.Error("GetHandler(usage) did not return the usage module")
	}
	if h := r.GetHandler("missing"); h != nil {
		t.Errorf("GetHandler(missing) = %v, want nil", h)
	}

	if got := r.Modules(); !slices.Equal(got, []string{"mops", "usage"}) {
		t.Errorf("Modules() = %v", got)
	}
}
