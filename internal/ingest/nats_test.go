package ingest

import (
	"context"
	"testing"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"

	"github.com/rickgao/aodata-ingest/internal/buffer"
	"github.com/rickgao/aodata-ingest/internal/connection"
	"github.com/rickgao/aodata-ingest/internal/model"
)

func TestIngestor_FromNATS(t *testing.T) {
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	srv := natsserver.RunServer(&opts)
	defer srv.Shutdown()

	cfg := connection.DefaultClientConfig()
	cfg.URL = srv.ClientURL()
	client := connection.NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	sub, err := client.Subscribe("marketorders.deduped")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	buf := buffer.New[model.Order](0)
	in := New(DefaultConfig(string(model.KindOrder)), sub, DecodeOrder, buf, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	pub, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("publisher connect: %v", err)
	}
	defer pub.Close()

	for i := 0; i < 3; i++ {
		if err := pub.Publish("marketorders.deduped", []byte(validOrder)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if err := pub.Publish("marketorders.deduped", []byte(`nope`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	pub.Flush()

	waitFor(t, func() bool { return in.Stats().Received == 4 })
	cancel()
	<-done

	if buf.Len() != 3 {
		t.Errorf("buffer Len() = %d, want 3", buf.Len())
	}
	if got := in.Stats().DecodeErrors; got != 1 {
		t.Errorf("DecodeErrors = %d, want 1", got)
	}
}
