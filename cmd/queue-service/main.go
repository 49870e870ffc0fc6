package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"daso/queue-service/internal/config"
	"daso/queue-service/internal/httpapi"
	"daso/queue-service/internal/hub"
	"daso/queue-service/internal/store"
	"daso/queue-service/internal/store/memory"
	"daso/queue-service/internal/store/postgres"
	"daso/queue-service/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type eventEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("queue-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	var queue store.QueueStore
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		pg := postgres.NewStore(pool)
		if err := pg.Init(context.Background()); err != nil {
			log.Fatalf("db init: %v", err)
		}
		queue = pg
	} else {
		log.Printf("DB_DSN not set, using in-memory store")
		queue = memory.NewStore(memory.Options{})
	}

	handler := httpapi.NewHandler(queue, httpapi.Options{
		LateArrivalGrace: cfg.LateArrivalGrace,
		QueuePageSize:    cfg.QueuePageSize,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:     cfg.RateLimitPerMinute,
		IPBurst:         cfg.RateLimitBurst,
		MobilePerMinute: cfg.MobileRateLimitPerMinute,
		MobileBurst:     cfg.MobileRateLimitBurst,
	})
	h := hub.New()

	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.Handle("/realtime/", sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, hub.Subscription{})
				continue
			}
			h.UpdateSubscription(client, hub.Subscription{
				ServiceType: parsed.ServiceType,
				Status:      parsed.Status,
			})
		}
	}))

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "queue-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("queue-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go func() {
		if cfg.LateArrivalGrace <= 0 || cfg.SweepInterval <= 0 {
			return
		}
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			count, err := queue.SweepLateArrivals(ctx, time.Now().UTC(), cfg.LateArrivalGrace)
			cancel()
			if err != nil {
				log.Printf("late arrival sweep error: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("late arrival sweep moved %d entries to holding", count)
			}
		}
	}()

	go func() {
		if cfg.EventPollInterval <= 0 {
			return
		}
		cursor := newEventCursor(time.Now().UTC())
		var running int32
		ticker := time.NewTicker(cfg.EventPollInterval)
		defer ticker.Stop()
		for range ticker.C {
			if !atomic.CompareAndSwapInt32(&running, 0, 1) {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			events, err := queue.ListEvents(ctx, cursor.since(), cfg.EventBatchSize)
			cancel()
			if err != nil {
				log.Printf("event poll error: %v", err)
			}
			for _, event := range events {
				if !cursor.admit(event) {
					continue
				}
				env := eventEnvelope{Type: event.Type, Payload: event.Payload, CreatedAt: event.CreatedAt}
				payload, _ := json.Marshal(env)
				h.Broadcast(payload, extractMeta(event.Payload))
			}
			atomic.StoreInt32(&running, 0)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// eventCursor tracks the broadcast position in the outbox. Polls re-read
// from just before the watermark so events sharing its timestamp are not
// skipped when a batch boundary splits them; admit de-duplicates those
// re-reads by event ID.
type eventCursor struct {
	watermark time.Time
	seen      map[string]bool
}

func newEventCursor(start time.Time) *eventCursor {
	return &eventCursor{watermark: start, seen: make(map[string]bool)}
}

func (c *eventCursor) since() time.Time {
	return c.watermark.Add(-time.Nanosecond)
}

func (c *eventCursor) admit(event store.Event) bool {
	if c.seen[event.EventID] {
		return false
	}
	if event.CreatedAt.After(c.watermark) {
		c.watermark = event.CreatedAt
		c.seen = map[string]bool{event.EventID: true}
		return true
	}
	c.seen[event.EventID] = true
	return true
}

func extractMeta(payload []byte) hub.Subscription {
	var data store.EventPayload
	if err := json.Unmarshal(payload, &data); err != nil {
		return hub.Subscription{}
	}
	return hub.Subscription{ServiceType: data.ServiceType, Status: data.Status}
}
