package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/openmall/order-engine/internal/adapter/handler"
	"github.com/openmall/order-engine/internal/adapter/payment"
	"github.com/openmall/order-engine/internal/adapter/queue"
	"github.com/openmall/order-engine/internal/adapter/storage"
	"github.com/openmall/order-engine/internal/core/service"
)

const (
	defaultHTTPPort      = ":8080"
	defaultMySQLDSN      = "root:root@tcp(localhost:3306)/openmall?parseTime=true"
	defaultRedisAddr     = "localhost:6379"
	defaultOrderTTL      = 30 * time.Minute
	defaultRatingWorkers = 4
	sandboxRefundDelay   = 2 * time.Second
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mysqlDSN := envOr("MYSQL_DSN", defaultMySQLDSN)
	redisAddr := envOr("REDIS_ADDR", defaultRedisAddr)
	httpPort := envOr("HTTP_PORT", defaultHTTPPort)

	orderTTL := defaultOrderTTL
	if v := os.Getenv("ORDER_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("invalid ORDER_TTL %q: %v", v, err)
		}
		orderTTL = d
	}

	ratingWorkers := defaultRatingWorkers
	if v := os.Getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			log.Fatalf("invalid WORKER_COUNT %q", v)
		}
		ratingWorkers = n
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	log.Println("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	log.Println("connected to redis")

	// Initialize adapters
	store := storage.NewMySQLStore(db)
	jobQueue := queue.NewRedisQueue(rdb)
	cart := storage.NewRedisCart(rdb)
	gateway := payment.NewSandboxGateway(sandboxRefundDelay)

	// Initialize service
	orderService := service.NewOrderService(store, jobQueue, jobQueue, cart, gateway, orderTTL)

	gateway.OnResult(func(orderNo, refundNo string, ok bool) {
		notifyCtx, notifyCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer notifyCancel()
		if err := orderService.ConfirmRefund(notifyCtx, orderNo, ok, ""); err != nil {
			log.Printf("refund notification for order %s failed: %v", orderNo, err)
		}
	})

	// Start background workers
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		orderService.RunCancellationWorker(ctx)
	}()
	for i := 0; i < ratingWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			orderService.RunRatingWorker(ctx)
		}()
	}
	log.Printf("started cancellation worker and %d rating workers", ratingWorkers)

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(orderService)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpHandler.HealthCheck)
	mux.HandleFunc("/api/orders", httpHandler.PlaceOrder)
	mux.HandleFunc("/api/orders/show", httpHandler.GetOrder)
	mux.HandleFunc("/api/orders/receipt", httpHandler.ConfirmReceipt)
	mux.HandleFunc("/api/orders/review", httpHandler.SubmitReview)
	mux.HandleFunc("/api/orders/refund", httpHandler.RequestRefund)
	mux.HandleFunc("/api/payments/notify", httpHandler.PaymentNotify)
	mux.HandleFunc("/api/admin/ship", httpHandler.ConfirmDelivery)
	mux.HandleFunc("/api/admin/refund/agree", httpHandler.AgreeRefund)

	httpServer := &http.Server{
		Addr:    httpPort,
		Handler: mux,
	}

	go func() {
		log.Printf("HTTP server listening on %s", httpPort)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Println("HTTP server stopped")

	cancel()
	wg.Wait()
	log.Println("workers stopped")

	rdb.Close()
	db.Close()
	log.Println("connections closed")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
