package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/openmall/order-engine/internal/adapter/payment"
	"github.com/openmall/order-engine/internal/adapter/queue"
	"github.com/openmall/order-engine/internal/adapter/storage"
	"github.com/openmall/order-engine/internal/core/domain"
	"github.com/openmall/order-engine/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
	orderTTL      = 30 * time.Minute
)

// Concurrent checkout driver: hammers one SKU with more demand than stock
// and verifies the ledger never oversells.
func main() {
	ctx := context.Background()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/openmall?parseTime=true"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Seed a product with one SKU holding the contended stock.
	result, err := db.ExecContext(ctx, `
		INSERT INTO products (title, rating, review_count, created_at, updated_at)
		VALUES ('loadgen product', 0, 0, NOW(), NOW())`)
	if err != nil {
		log.Fatalf("seed product: %v", err)
	}
	productID, _ := result.LastInsertId()

	result, err = db.ExecContext(ctx, `
		INSERT INTO product_skus (product_id, title, price, stock, created_at, updated_at)
		VALUES (?, 'loadgen sku', '9.90', ?, NOW(), NOW())`, productID, initialStock)
	if err != nil {
		log.Fatalf("seed sku: %v", err)
	}
	skuID, _ := result.LastInsertId()

	store := storage.NewMySQLStore(db)
	jobQueue := queue.NewRedisQueue(rdb)
	cart := storage.NewRedisCart(rdb)
	gateway := payment.NewSandboxGateway(time.Second)
	orderService := service.NewOrderService(store, jobQueue, jobQueue, cart, gateway, orderTTL)

	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	address := domain.Address{
		FullAddress:  "1 Loadgen Way",
		Zip:          "000000",
		ContactName:  "loadgen",
		ContactPhone: "000",
	}

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()

			_, err := orderService.PlaceOrder(ctx, fmt.Sprintf("user-%d", userID), address, "",
				[]service.CartItem{{SkuID: skuID, Quantity: 1}}, "")
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, service.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				failCount.Add(1)
				log.Printf("user-%d: %v", userID, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	var remaining int
	db.QueryRowContext(ctx, `SELECT stock FROM product_skus WHERE id = ?`, skuID).Scan(&remaining)

	fmt.Printf("requests:  %d in %v\n", totalRequests, elapsed)
	fmt.Printf("succeeded: %d\n", successCount.Load())
	fmt.Printf("sold out:  %d\n", soldOutCount.Load())
	fmt.Printf("errors:    %d\n", failCount.Load())
	fmt.Printf("remaining stock: %d\n", remaining)

	if remaining < 0 || int(successCount.Load()) != initialStock {
		log.Fatal("OVERSELL DETECTED")
	}
	fmt.Println("no oversell")
}
