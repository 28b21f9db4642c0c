package biz

import (
	"testing"

	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/conf"
)

func TestNewUsecases(t *testing.T) {
	cfg := conf.LoadFromEnv()
	categories, err := conf.ParseGrammars(conf.DefaultGrammars(), " ")
	if err != nil {
		t.Fatal(err)
	}

	uc, err := NewUsecases(cfg, categories, Sources{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewUsecases failed: %v", err)
	}
	if uc.Session.Connected() {
		t.Error("expected session to start disconnected")
	}
	if len(uc.Dispatcher.Unhandled()) != len(uc.Registry.Grammars()) {
		t.Error("expected every grammar unhandled before registration")
	}
}
