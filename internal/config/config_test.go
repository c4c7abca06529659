package config_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/voxhire/voxhire/internal/config"
	"github.com/voxhire/voxhire/pkg/provider/agent"
	agentmock "github.com/voxhire/voxhire/pkg/provider/agent/mock"
	"github.com/voxhire/voxhire/pkg/provider/embeddings"
	embmock "github.com/voxhire/voxhire/pkg/provider/embeddings/mock"
	"github.com/voxhire/voxhire/pkg/provider/llm"
	llmmock "github.com/voxhire/voxhire/pkg/provider/llm/mock"
)

func TestRegistry_CreateAgent(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var gotEntry config.ProviderEntry
	reg.RegisterAgent("gemini-live", func(e config.ProviderEntry) (agent.Provider, error) {
		gotEntry = e
		return &agentmock.Provider{}, nil
	})

	entry := config.ProviderEntry{Name: "gemini-live", APIKey: "k", Model: "m", Voice: "aster"}
	p, err := reg.CreateAgent(entry)
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if p == nil {
		t.Fatal("CreateAgent returned nil provider")
	}
	if !reflect.DeepEqual(gotEntry, entry) {
		t.Errorf("factory received %+v; want %+v", gotEntry, entry)
	}
}

func TestRegistry_CreateAgent_NotRegistered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	_, err := reg.CreateAgent(config.ProviderEntry{Name: "unknown"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("error = %v; want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_CreateLLMAndEmbeddings(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterLLM("anthropic", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})
	reg.RegisterEmbeddings("openai", func(config.ProviderEntry) (embeddings.Provider, error) {
		return &embmock.Provider{}, nil
	})

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "anthropic"}); err != nil {
		t.Errorf("CreateLLM: %v", err)
	}
	if _, err := reg.CreateEmbeddings(config.ProviderEntry{Name: "openai"}); err != nil {
		t.Errorf("CreateEmbeddings: %v", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM for unregistered name: %v", err)
	}
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterAgent("gemini-live", func(config.ProviderEntry) (agent.Provider, error) {
		t.Error("stale factory invoked")
		return &agentmock.Provider{}, nil
	})
	want := &agentmock.Provider{}
	reg.RegisterAgent("gemini-live", func(config.ProviderEntry) (agent.Provider, error) {
		return want, nil
	})

	p, err := reg.CreateAgent(config.ProviderEntry{Name: "gemini-live"})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if p != want {
		t.Error("CreateAgent did not use the latest registration")
	}
}
