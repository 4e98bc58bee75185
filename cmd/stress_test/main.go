package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/adapter/client"
	"github.com/rl1809/stock-reservation/internal/adapter/handler"
)

func main() {
	orderURL := flag.String("order-url", "http://localhost:8081", "order service base URL")
	inventoryURL := flag.String("inventory-url", "http://localhost:8080", "inventory service base URL")
	productID := flag.Int64("product", 1, "product to order")
	quantity := flag.Int("quantity", 1, "quantity per order")
	totalRequests := flag.Int("requests", 50, "concurrent order requests")
	flag.Parse()

	ctx := context.Background()
	inventory := client.NewHTTPInventoryClient(*inventoryURL, client.Config{}, zap.NewNop())

	before, err := inventory.CheckInventory(ctx, *productID)
	if err != nil {
		log.Fatalf("failed to read inventory: %v", err)
	}
	initialStock := before.TotalQuantity()

	var successCount, rejectedCount, errorCount atomic.Int32
	httpClient := &http.Client{Timeout: 30 * time.Second}

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			status, err := placeOrder(httpClient, *orderURL, *productID, *quantity)
			switch {
			case err != nil:
				errorCount.Add(1)
			case status == http.StatusCreated:
				successCount.Add(1)
			case status == http.StatusBadRequest:
				rejectedCount.Add(1)
			default:
				errorCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	after, err := inventory.CheckInventory(ctx, *productID)
	if err != nil {
		log.Fatalf("failed to read inventory: %v", err)
	}
	finalStock := after.TotalQuantity()

	success := int(successCount.Load())
	expectedSuccess := min(*totalRequests, initialStock / *quantity)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d x %d\n", *totalRequests, *quantity)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Rejected:         %d\n", rejectedCount.Load())
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Final Stock:      %d\n", finalStock)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if success != expectedSuccess {
		fmt.Printf("FAIL: Expected %d successful orders, got %d\n", expectedSuccess, success)
		failed = true
	} else {
		fmt.Printf("PASS: Exactly %d orders succeeded\n", success)
	}

	if finalStock != initialStock-success*(*quantity) {
		fmt.Printf("FAIL: Expected stock %d, got %d\n", initialStock-success*(*quantity), finalStock)
		failed = true
	} else {
		fmt.Println("PASS: Stock matches placed orders")
	}

	if failed {
		os.Exit(1)
	}
}

func placeOrder(c *http.Client, baseURL string, productID int64, quantity int) (int, error) {
	body, err := json.Marshal(handler.PlaceOrderRequest{ProductID: productID, Quantity: quantity})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/order", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handler.HeaderIdempotencyKey, uuid.NewString())

	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
