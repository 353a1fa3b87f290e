// cmd/transfer-bench/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/tracing"
	"storefront/internal/service/inventory/application"
	"storefront/internal/service/inventory/domain"
)

const serviceName = "transfer-bench"

// 对一个运行中的库存服务并发地双向划转，最后检查两条记录的总量是否守恒
func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:8082", "inventory service base url")
		source      = flag.String("a", "bench-A", "first product id")
		destination = flag.String("b", "bench-B", "second product id")
		initial     = flag.Int64("initial", 1000, "initial quantity seeded on both records")
		workers     = flag.Int("workers", 16, "concurrent workers")
		requests    = flag.Int("n", 1000, "total transfer requests")
		maxAmount   = flag.Int64("max-amount", 25, "upper bound of a single transfer amount")
		jaeger      = flag.String("jaeger", "", "jaeger collector endpoint, empty disables export")
	)
	flag.Parse()
	logger.Init(serviceName, os.Getenv("LOG_LEVEL"))

	tp, err := tracing.InitTracerProvider(serviceName, *jaeger)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	client := httpclient.NewClient(otel.Tracer(serviceName))
	ctx := context.Background()

	for _, id := range []string{*source, *destination} {
		if err := client.PutJSON(ctx, *baseURL+"/stock", application.SeedStockRequest{ProductID: id, Quantity: *initial}, nil); err != nil {
			zlog.Fatal().Err(err).Str("product_id", id).Msg("failed to seed stock")
		}
	}

	var committed, rejected, failed atomic.Int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)
	for i := 0; i < *requests; i++ {
		from, to := *source, *destination
		if i%2 == 1 {
			from, to = to, from
		}
		amount := int64(i)%*maxAmount + 1
		g.Go(func() error {
			req := application.TransferRequest{
				RequestID:     uuid.New().String(),
				SourceID:      from,
				DestinationID: to,
				Amount:        amount,
			}
			reqCtx, cancel := context.WithTimeout(gctx, 10*time.Second)
			defer cancel()

			var result domain.TransferResult
			err := client.PostJSON(reqCtx, *baseURL+"/transfer", req, &result)
			var statusErr *httpclient.StatusError
			switch {
			case err == nil:
				committed.Add(1)
			case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict:
				// 库存不足属于正常的业务拒绝
				rejected.Add(1)
			default:
				failed.Add(1)
				zlog.Warn().Err(err).Str("request_id", req.RequestID).Msg("transfer failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	total, err := pairTotal(ctx, client, *baseURL, *source, *destination)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to read final stock")
	}

	zlog.Info().
		Int64("committed", committed.Load()).
		Int64("rejected", rejected.Load()).
		Int64("failed", failed.Load()).
		Dur("elapsed", elapsed).
		Float64("tps", float64(*requests)/elapsed.Seconds()).
		Int64("total", total).
		Msg("benchmark finished")

	if want := 2 * *initial; total != want {
		zlog.Error().Int64("want", want).Int64("got", total).Msg("stock total not conserved")
		os.Exit(1)
	}
}

func pairTotal(ctx context.Context, client *httpclient.Client, baseURL, a, b string) (int64, error) {
	var total int64
	for _, id := range []string{a, b} {
		var rec domain.StockRecord
		if err := client.GetJSON(ctx, fmt.Sprintf("%s/stock?product_id=%s", baseURL, url.QueryEscape(id)), &rec); err != nil {
			return 0, err
		}
		total += rec.Quantity
	}
	return total, nil
}
