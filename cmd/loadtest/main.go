// Command loadtest оформляет заказы параллельно на один товар и проверяет,
// что итоговый остаток сходится с числом успешных заказов и отмен.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	grpcsvc "github.com/vladislavdragonenkov/erp-orders/internal/service/grpc"
)

const idempotencyHeader = "idempotency-key"

type loadMode string

const (
	modeCreate       loadMode = "create"
	modeCreateCancel loadMode = "create-cancel"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	productID   string
	stock       int
	price       string
	qty         int
	userTag     string
	outputPath  string
}

type orderAPI interface {
	CreateOrder(ctx context.Context, in *grpcsvc.CreateOrderRequest, opts ...grpc.CallOption) (*grpcsvc.CreateOrderResponse, error)
	CancelOrder(ctx context.Context, in *grpcsvc.CancelOrderRequest, opts ...grpc.CallOption) (*grpcsvc.CancelOrderResponse, error)
}

type catalogAPI interface {
	CreateProduct(ctx context.Context, in *grpcsvc.CreateProductRequest, opts ...grpc.CallOption) (*grpcsvc.ProductResponse, error)
	GetProduct(ctx context.Context, in *grpcsvc.GetProductRequest, opts ...grpc.CallOption) (*grpcsvc.ProductResponse, error)
}

func parseConfig(args []string) (config, error) {
	var cfg config
	var modeValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 1m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 8, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-cancel")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 100, "cancel probability in percent for create-cancel mode (0..100)")
	fs.StringVar(&cfg.productID, "product-id", "", "existing product to order; empty creates a fresh one")
	fs.IntVar(&cfg.stock, "stock", 100, "initial stock of the created product")
	fs.StringVar(&cfg.price, "price", "10.00", "unit price of the created product")
	fs.IntVar(&cfg.qty, "qty", 1, "quantity per order")
	fs.StringVar(&cfg.userTag, "user-tag", "load", "user id prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.productID = strings.TrimSpace(cfg.productID)

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return cfg, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.qty <= 0:
		return cfg, errors.New("qty must be > 0")
	case cfg.stock < 0:
		return cfg, errors.New("stock must be >= 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	case strings.TrimSpace(cfg.userTag) == "":
		return cfg, errors.New("user-tag is required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCreate:
		return modeCreate, nil
	case modeCreateCancel:
		return modeCreateCancel, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]orderAPI, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewOrderServiceClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	result, err := execute(cfg, clients, grpcsvc.NewCatalogServiceClient(conns[0]))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || (result.Stock != nil && !result.Stock.Consistent) {
		os.Exit(1)
	}
}

// execute готовит товар, прогоняет сценарии и сверяет остаток.
func execute(cfg config, clients []orderAPI, catalog catalogAPI) (report, error) {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())

	productID, initial, err := prepareProduct(cfg, catalog, runID)
	if err != nil {
		return report{}, err
	}

	col := newCollector()
	var created, cancelled atomic.Int64

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(cli orderAPI) {
			defer wg.Done()
			for id := range jobs {
				out := runScenario(cli, cfg, productID, id, runID, col)
				if out.created {
					created.Add(1)
				}
				if out.cancelled {
					cancelled.Add(1)
				}
			}
		}(clients[workerID%len(clients)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))

	final, err := fetchStock(cfg, catalog, productID)
	if err != nil {
		return result, err
	}
	expected := initial - cfg.qty*int(created.Load()) + cfg.qty*int(cancelled.Load())
	result.Stock = &stockCheck{
		ProductID:  productID,
		Initial:    initial,
		Final:      final,
		Expected:   expected,
		Consistent: final == expected && final >= 0,
	}
	return result, nil
}

func prepareProduct(cfg config, catalog catalogAPI, runID string) (string, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	if cfg.productID != "" {
		resp, err := catalog.GetProduct(ctx, &grpcsvc.GetProductRequest{ProductID: cfg.productID})
		if err != nil {
			return "", 0, fmt.Errorf("get product %s: %w", cfg.productID, err)
		}
		return resp.Product.ID, resp.Product.Stock, nil
	}

	resp, err := catalog.CreateProduct(ctx, &grpcsvc.CreateProductRequest{
		Name:  "Load test item " + runID,
		SKU:   "LOAD-" + runID,
		Price: cfg.price,
		Stock: cfg.stock,
	})
	if err != nil {
		return "", 0, fmt.Errorf("create product: %w", err)
	}
	return resp.Product.ID, resp.Product.Stock, nil
}

func fetchStock(cfg config, catalog catalogAPI, productID string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	resp, err := catalog.GetProduct(ctx, &grpcsvc.GetProductRequest{ProductID: productID})
	if err != nil {
		return 0, fmt.Errorf("get product %s: %w", productID, err)
	}
	return resp.Product.Stock, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

type scenarioOutcome struct {
	created   bool
	cancelled bool
}

func runScenario(client orderAPI, cfg config, productID string, index int, runID string, col *collector) (out scenarioOutcome) {
	scenarioStart := time.Now()
	scenarioCode := codes.OK
	defer func() {
		col.record(scenarioMethod, time.Since(scenarioStart), scenarioCode)
	}()

	createReq := &grpcsvc.CreateOrderRequest{
		UserID: fmt.Sprintf("%s-%s-%d", cfg.userTag, runID, index),
		Items:  []grpcsvc.OrderItemInput{{ProductID: productID, Quantity: cfg.qty}},
		Notes:  "loadtest",
	}

	createKey := fmt.Sprintf("lt-create-%s-%d", runID, index)
	orderResp, err := callCreateOrder(client, cfg.timeout, createReq, createKey, col)
	if err != nil {
		scenarioCode = grpcCode(err)
		return out
	}
	if orderResp.Order == nil || orderResp.Order.ID == "" {
		scenarioCode = codes.Internal
		return out
	}
	out.created = true

	if cfg.mode != modeCreateCancel || !shouldCancelScenario(index, cfg.cancelRate) {
		return out
	}

	cancelKey := fmt.Sprintf("lt-cancel-%s-%d", runID, index)
	if err := callCancelOrder(client, cfg.timeout, orderResp.Order.ID, cancelKey, col); err != nil {
		scenarioCode = grpcCode(err)
		return out
	}
	out.cancelled = true
	return out
}

func callCreateOrder(client orderAPI, timeout time.Duration, req *grpcsvc.CreateOrderRequest, key string, col *collector) (*grpcsvc.CreateOrderResponse, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, idempotencyHeader, key)

	resp, err := client.CreateOrder(ctx, req)
	col.record("CreateOrder", time.Since(start), grpcCode(err))
	return resp, err
}

func callCancelOrder(client orderAPI, timeout time.Duration, orderID, key string, col *collector) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, idempotencyHeader, key)

	_, err := client.CancelOrder(ctx, &grpcsvc.CancelOrderRequest{OrderID: orderID, Reason: "load-cancel"})
	col.record("CancelOrder", time.Since(start), grpcCode(err))
	return err
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}
