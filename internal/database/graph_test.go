package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/yishak-cs/storefront-recs/internal/database"
	"github.com/yishak-cs/storefront-recs/internal/logger"
	"github.com/yishak-cs/storefront-recs/internal/models"
)

type recordingGraph struct {
	productBatches [][]models.Product
	lineBatches    [][]models.OrderLine
	removed        []uint
}

func (g *recordingGraph) SyncProductState(_ context.Context, products []models.Product) error {
	g.productBatches = append(g.productBatches, products)
	return nil
}

func (g *recordingGraph) SyncPaidOrders(_ context.Context, lines []models.OrderLine) error {
	g.lineBatches = append(g.lineBatches, lines)
	return nil
}

func (g *recordingGraph) RemoveOrders(_ context.Context, orderIDs []uint) error {
	g.removed = append(g.removed, orderIDs...)
	return nil
}

func TestGraphSyncerSyncAll(t *testing.T) {
	store, seed := setup(t)
	cat := seed.Category("Home")
	a := seed.Product("A", cat.ID)
	b := seed.Product("B", cat.ID)
	seed.Product("C", cat.ID)
	buyer := seed.Customer()
	seed.Order(buyer.ID, models.PaymentPaid, a.ID, b.ID)
	pending := seed.Order(buyer.ID, models.PaymentPending, a.ID)
	seed.Order(buyer.ID, models.PaymentPaid, b.ID)

	graph := &recordingGraph{}
	syncer := database.NewGraphSyncer(store, graph, 2, logger.Nop())
	report, err := syncer.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if report.Products != 3 || report.OrderLines != 3 || report.RemovedOrders != 1 {
		t.Fatalf("report: got=%+v", report)
	}
	// a full run clears orders that stopped being PAID since the last run
	if len(graph.removed) != 1 || graph.removed[0] != pending.ID {
		t.Fatalf("removed: want=[%d] got=%v", pending.ID, graph.removed)
	}
	if len(graph.productBatches) != 2 || len(graph.lineBatches) != 2 {
		t.Fatalf("batches: products=%d lines=%d", len(graph.productBatches), len(graph.lineBatches))
	}
	for _, batch := range graph.lineBatches {
		for _, line := range batch {
			if line.CustomerID != buyer.ID {
				t.Fatalf("line customer: want=%d got=%d", buyer.ID, line.CustomerID)
			}
		}
	}
}

func TestGraphSyncerSyncOrder(t *testing.T) {
	store, seed := setup(t)
	cat := seed.Category("Home")
	a := seed.Product("A", cat.ID)
	b := seed.Product("B", cat.ID)
	buyer := seed.Customer()
	paid := seed.Order(buyer.ID, models.PaymentPaid, a.ID, b.ID)
	refunded := seed.Order(buyer.ID, models.PaymentRefunded, a.ID)

	graph := &recordingGraph{}
	syncer := database.NewGraphSyncer(store, graph, 0, logger.Nop())
	ctx := context.Background()

	if err := syncer.SyncOrder(ctx, paid.ID); err != nil {
		t.Fatalf("SyncOrder paid: %v", err)
	}
	if len(graph.lineBatches) != 1 || len(graph.lineBatches[0]) != 2 {
		t.Fatalf("paid lines: got=%v", graph.lineBatches)
	}
	if len(graph.productBatches) != 1 || len(graph.productBatches[0]) != 2 {
		t.Fatalf("paid products: got=%v", graph.productBatches)
	}

	if err := syncer.SyncOrder(ctx, refunded.ID); err != nil {
		t.Fatalf("SyncOrder refunded: %v", err)
	}
	if len(graph.removed) != 1 || graph.removed[0] != refunded.ID {
		t.Fatalf("removed: want=[%d] got=%v", refunded.ID, graph.removed)
	}

	if err := syncer.SyncOrder(ctx, 9999); err == nil {
		t.Fatal("SyncOrder unknown: want error")
	}
}

func TestGraphSyncerRunStopsWithContext(t *testing.T) {
	store, seed := setup(t)
	cat := seed.Category("Home")
	seed.Product("A", cat.ID)

	graph := &recordingGraph{}
	syncer := database.NewGraphSyncer(store, graph, 0, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		syncer.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if len(graph.productBatches) != 0 {
		t.Fatalf("no tick should have synced, got %d batches", len(graph.productBatches))
	}
}
