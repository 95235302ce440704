package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"
)

// Result 单次请求的 HTTP 结果。
type Result struct {
	Status int
	Body   []byte
	Err    error
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	adminToken := flag.String("admin-token", "dev-admin-token", "admin token for sync-stock")
	stock := flag.Int64("stock", 50, "initial stock of the test product")
	nOrders := flag.Int("orders", 200, "orders competing for the stock")
	repeat := flag.Int("repeat", 3, "completion requests per order (duplicates must not double-count)")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	var product struct {
		ID uint `json:"id"`
	}
	must(call(client, http.MethodPost, *baseURL+"/api/products", map[string]any{
		"name": fmt.Sprintf("loadtest-%d", time.Now().Unix()), "price": "1", "initial_stock": *stock,
	}, nil, &product))
	var customer struct {
		ID uint `json:"id"`
	}
	must(call(client, http.MethodPost, *baseURL+"/api/customers", map[string]any{"name": "loadtest"}, nil, &customer))

	orderIDs := make([]uint, 0, *nOrders)
	for i := 0; i < *nOrders; i++ {
		var o struct {
			ID uint `json:"id"`
		}
		must(call(client, http.MethodPost, *baseURL+"/api/orders", map[string]any{
			"customer_id": customer.ID, "product_id": product.ID, "quantity": 1,
		}, nil, &o))
		orderIDs = append(orderIDs, o.ID)
	}
	fmt.Printf("product=%d stock=%d orders=%d repeat=%d concurrency=%d\n", product.ID, *stock, *nOrders, *repeat, *concurrency)

	// 每个订单重复发 completed，重复请求必须是 no-op
	results := runConcurrent(*concurrency, len(orderIDs)*(*repeat), func(i int) Result {
		id := orderIDs[i%len(orderIDs)]
		return send(client, http.MethodPut, fmt.Sprintf("%s/api/orders/%d/status", *baseURL, id), map[string]string{"status": "completed"}, nil)
	})
	printSummary("complete", results)

	var orders []struct {
		ProductID uint   `json:"product_id"`
		Status    string `json:"status"`
	}
	must(call(client, http.MethodGet, *baseURL+"/api/orders", nil, nil, &orders))
	completed := int64(0)
	for _, o := range orders {
		if o.ProductID == product.ID && o.Status == "completed" {
			completed++
		}
	}

	var st struct {
		Stock int64 `json:"stock"`
	}
	must(call(client, http.MethodGet, fmt.Sprintf("%s/api/products/%d/stock", *baseURL, product.ID), nil, nil, &st))
	fmt.Printf("completed orders=%d final stock=%d expected=%d\n", completed, st.Stock, *stock-completed)

	var rec struct {
		Corrected []json.RawMessage `json:"corrected"`
	}
	must(call(client, http.MethodPost, *baseURL+"/api/inventory/sync-stock", nil, map[string]string{"X-Admin-Token": *adminToken}, &rec))
	fmt.Printf("reconcile corrected=%d\n", len(rec.Corrected))

	if st.Stock < 0 || st.Stock != *stock-completed || len(rec.Corrected) != 0 {
		fmt.Println("FAIL: stock drifted from ledger")
		os.Exit(1)
	}
	fmt.Println("OK: no oversell, no double count")
}

func runConcurrent(concurrency, total int, fn func(i int) Result) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)
	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = fn(idx)
		}(i)
	}
	wg.Wait()
	return results
}

func send(client *http.Client, method, url string, body any, headers map[string]string) Result {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		return Result{Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: b}
}

// call 发送请求并把 data 解到 out。
func call(client *http.Client, method, url string, body any, headers map[string]string, out any) error {
	res := send(client, method, url, body, headers)
	if res.Err != nil {
		return res.Err
	}
	if res.Status >= 300 {
		return fmt.Errorf("%s %s: status=%d body=%s", method, url, res.Status, res.Body)
	}
	var env envelope
	if err := json.Unmarshal(res.Body, &env); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// printSummary 按状态码与错误类型聚合。
func printSummary(name string, results []Result) {
	count := map[string]int{}
	for _, r := range results {
		if r.Err != nil {
			count["transport_error"]++
			continue
		}
		var env envelope
		_ = json.Unmarshal(r.Body, &env)
		key := fmt.Sprintf("%d", r.Status)
		if env.Kind != "" {
			key += " " + env.Kind
		}
		count[key]++
	}
	fmt.Printf("[%s] summary:\n", name)
	for k, v := range count {
		fmt.Printf("  %s -> %d\n", k, v)
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
