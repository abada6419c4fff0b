package gocommand

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	resultlink "github.com/goliatone/go-resultlink"
	resultcommand "github.com/goliatone/go-resultlink/command"
	"github.com/goliatone/go-resultlink/core"
	"github.com/goliatone/go-resultlink/events"
	resultquery "github.com/goliatone/go-resultlink/query"
	"github.com/goliatone/go-resultlink/resolver"
)

type emptyTypeMessage struct{}

func (emptyTypeMessage) Type() string { return "" }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "resultlink.test.dispatch" }

type queueMessage struct{}

func (queueMessage) Type() string { return "resultlink.test.queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(resultcommand.EmitPageViewMessage{View: events.PageView{Path: "/results"}}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(emptyTypeMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(resultcommand.EmitPageViewMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	resolverCalls := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})
	sub, err := RegisterAndSubscribe[dispatchMessage](adapter, cmd)
	if err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		resolverCalls++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver(" custom ") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.AddResolver("  ", nil); err == nil {
		t.Fatalf("expected blank resolver key error")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if resolverCalls == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestQueueResolverMirrorsHandlers(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.AddQueueResolver("queue", nil); err == nil {
		t.Fatalf("expected missing queue registry error")
	}
	if err := adapter.Register(command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if _, ok := queueRegistry.Get("resultlink.test.queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}

func TestNilAdapterIsNotConfigured(t *testing.T) {
	var adapter *RegistryAdapter
	if err := adapter.Register(struct{}{}); !errors.Is(err, errRegistryNotConfigured) {
		t.Fatalf("expected not configured error, got %v", err)
	}
	if adapter.HasResolver("queue") {
		t.Fatalf("expected nil adapter to have no resolvers")
	}
	if _, err := RegisterAndSubscribe[dispatchMessage](adapter, nil); err == nil {
		t.Fatalf("expected registration error")
	}
}

func TestRegisterFacadeDispatchesTypedMessages(t *testing.T) {
	svc, err := resultlink.NewService(resultlink.Config{
		Token: core.TokenConfig{
			ActiveKeyID: "k1",
			Keys:        map[string]string{"k1": "00112233445566778899aabbccddeeff"},
		},
	}, resultlink.WithResourceFetcher(core.ResourceFetcherFunc(func(_ context.Context, id core.Identifier) (core.Resource, error) {
		payload, _ := json.Marshal(map[string]string{"id": id.String()})
		return core.Resource{Identifier: id, Payload: payload, FetchedAt: time.Now()}, nil
	})))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	facade, err := resultlink.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	adapter := NewRegistryAdapter(nil)
	subs, err := RegisterFacade(adapter, facade)
	if err != nil {
		t.Fatalf("register facade: %v", err)
	}
	defer subs.Unsubscribe()
	if len(subs) != 9 {
		t.Fatalf("expected 9 subscriptions, got %d", len(subs))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if err := Dispatch(context.Background(), resultcommand.EmitPageViewMessage{
		View: events.PageView{Path: "/results"},
	}); err != nil {
		t.Fatalf("dispatch page view: %v", err)
	}

	raw, err := svc.EncodeResultToken("ad_9")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	snapshot, err := Query[resultquery.ResolveResultMessage, resolver.Snapshot](context.Background(), resultquery.ResolveResultMessage{
		Query: url.Values{core.DefaultTokenParam: []string{raw}},
	})
	if err != nil {
		t.Fatalf("query resolve result: %v", err)
	}
	if snapshot.Presentation != resolver.PresentationReady {
		t.Fatalf("expected ready snapshot, got %q", snapshot.Presentation)
	}

	if _, err := RegisterFacade(adapter, nil); err == nil {
		t.Fatalf("expected nil facade error")
	}
}
