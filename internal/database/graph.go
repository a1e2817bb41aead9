package database

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yishak-cs/storefront-recs/internal/logger"
	"github.com/yishak-cs/storefront-recs/internal/models"
)

// CoPurchaseGraph projects PAID orders into Neo4j as
// (:Customer)-[:PLACED]->(:Order)-[:CONTAINS]->(:Product)
// and answers also-bought queries from it. Each CONTAINS relationship is
// one order item, so relationship counts equal order item counts.
type CoPurchaseGraph struct {
	client *Neo4jClient
	log    *logger.Logger
}

// NewCoPurchaseGraph creates a graph projection over a Neo4j client
func NewCoPurchaseGraph(client *Neo4jClient, log *logger.Logger) *CoPurchaseGraph {
	return &CoPurchaseGraph{client: client, log: log.With("component", "copurchase_graph")}
}

// SyncProductState upserts product nodes with their active flag and creation time
func (g *CoPurchaseGraph) SyncProductState(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, len(products))
	for i, p := range products {
		rows[i] = map[string]interface{}{
			"id":         int64(p.ID),
			"active":     p.IsActive,
			"created_at": p.CreatedAt.UTC(),
		}
	}

	query := `
		UNWIND $rows AS row
		MERGE (p:Product {db_id: row.id})
		SET p.active = row.active, p.created_at = row.created_at
	`
	if err := g.client.ExecuteWrite(ctx, query, map[string]interface{}{"rows": rows}); err != nil {
		return fmt.Errorf("failed to sync product state: %w", err)
	}
	return nil
}

// SyncPaidOrders merges a batch of PAID order lines. Re-syncing the same
// lines is a no-op.
func (g *CoPurchaseGraph) SyncPaidOrders(ctx context.Context, lines []models.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, len(lines))
	for i, l := range lines {
		rows[i] = map[string]interface{}{
			"item_id":     int64(l.OrderItemID),
			"order_id":    int64(l.OrderID),
			"customer_id": int64(l.CustomerID),
			"product_id":  int64(l.ProductID),
			"quantity":    int64(l.Quantity),
			"ordered_at":  l.OrderedAt.UTC(),
		}
	}

	query := `
		UNWIND $rows AS row
		MERGE (c:Customer {db_id: row.customer_id})
		MERGE (o:Order {db_id: row.order_id})
		  ON CREATE SET o.created_at = row.ordered_at
		MERGE (c)-[:PLACED]->(o)
		MERGE (p:Product {db_id: row.product_id})
		MERGE (o)-[r:CONTAINS {item_id: row.item_id}]->(p)
		SET r.quantity = row.quantity
	`
	return g.client.ExecuteWriteTransaction(ctx, func(tx neo4j.ManagedTransaction) error {
		if _, err := tx.Run(ctx, query, map[string]interface{}{"rows": rows}); err != nil {
			return fmt.Errorf("failed to merge order lines: %w", err)
		}
		return nil
	})
}

// RemoveOrders drops orders that are no longer PAID. Unknown ids are ignored.
func (g *CoPurchaseGraph) RemoveOrders(ctx context.Context, orderIDs []uint) error {
	if len(orderIDs) == 0 {
		return nil
	}
	ids := make([]int64, len(orderIDs))
	for i, id := range orderIDs {
		ids[i] = int64(id)
	}
	query := `
		UNWIND $ids AS id
		MATCH (o:Order {db_id: id})
		DETACH DELETE o
	`
	if err := g.client.ExecuteWrite(ctx, query, map[string]interface{}{"ids": ids}); err != nil {
		return fmt.Errorf("failed to remove %d orders: %w", len(orderIDs), err)
	}
	return nil
}

// AlsoBought counts, for every other active product, the order items its
// buyers share with the buyers of productID. A limit of zero or less
// returns the whole ranking.
func (g *CoPurchaseGraph) AlsoBought(ctx context.Context, productID uint, limit int) ([]CoPurchase, error) {
	query := `
		MATCH (:Product {db_id: $productID})<-[:CONTAINS]-(:Order)<-[:PLACED]-(c:Customer)
		WITH DISTINCT c
		MATCH (c)-[:PLACED]->(:Order)-[r:CONTAINS]->(p:Product)
		WHERE p.db_id <> $productID AND p.active = true
		WITH p, count(r) AS frequency
		RETURN p.db_id AS product_id, frequency
		ORDER BY frequency DESC, p.created_at DESC, p.db_id DESC
	`
	params := map[string]interface{}{
		"productID": int64(productID),
	}
	if limit > 0 {
		query += "LIMIT $limit\n"
		params["limit"] = int64(limit)
	}

	results, err := g.client.ExecuteRead(ctx, query, params)
	if err != nil {
		return nil, err
	}

	out := make([]CoPurchase, 0, len(results))
	for _, row := range results {
		id, _ := row["product_id"].(int64)
		freq, _ := row["frequency"].(int64)
		out = append(out, CoPurchase{ProductID: uint(id), Frequency: freq})
	}
	return out, nil
}

// Status returns node and relationship counts of the projection
func (g *CoPurchaseGraph) Status(ctx context.Context) (map[string]int64, error) {
	query := `
		CALL { MATCH (c:Customer) RETURN count(c) AS customers }
		CALL { MATCH (o:Order) RETURN count(o) AS orders }
		CALL { MATCH (p:Product) RETURN count(p) AS products }
		CALL { MATCH ()-[r:CONTAINS]->() RETURN count(r) AS order_items }
		RETURN customers, orders, products, order_items
	`
	results, err := g.client.ExecuteRead(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	status := map[string]int64{"customers": 0, "orders": 0, "products": 0, "order_items": 0}
	if len(results) == 0 {
		return status, nil
	}
	for key := range status {
		if v, ok := results[0][key].(int64); ok {
			status[key] = v
		}
	}
	return status, nil
}

// Health pings the graph database
func (g *CoPurchaseGraph) Health(ctx context.Context) error {
	return g.client.Health(ctx)
}

// GraphWriter is the write side of the co-purchase projection
type GraphWriter interface {
	SyncProductState(ctx context.Context, products []models.Product) error
	SyncPaidOrders(ctx context.Context, lines []models.OrderLine) error
	RemoveOrders(ctx context.Context, orderIDs []uint) error
}

// SyncReport summarizes a full projection run
type SyncReport struct {
	Products      int `json:"products"`
	OrderLines    int `json:"order_lines"`
	RemovedOrders int `json:"removed_orders"`
}

// GraphSyncer copies relational order data into the graph projection
type GraphSyncer struct {
	store *Store
	graph GraphWriter
	batch int
	log   *logger.Logger
}

// NewGraphSyncer creates a syncer that moves batch rows per round trip
func NewGraphSyncer(store *Store, graph GraphWriter, batch int, log *logger.Logger) *GraphSyncer {
	if batch <= 0 {
		batch = 500
	}
	return &GraphSyncer{store: store, graph: graph, batch: batch, log: log.With("component", "graph_syncer")}
}

// SyncAll projects every product state and every PAID order line
func (s *GraphSyncer) SyncAll(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	s.log.Info("Starting graph sync...")

	var afterProduct uint
	for {
		products, err := s.store.ProductsAfter(ctx, afterProduct, s.batch)
		if err != nil {
			return report, err
		}
		if len(products) == 0 {
			break
		}
		if err := s.graph.SyncProductState(ctx, products); err != nil {
			return report, err
		}
		report.Products += len(products)
		afterProduct = products[len(products)-1].ID
	}

	var afterItem uint
	for {
		lines, err := s.store.PaidOrderLines(ctx, afterItem, s.batch)
		if err != nil {
			return report, err
		}
		if len(lines) == 0 {
			break
		}
		if err := s.graph.SyncPaidOrders(ctx, lines); err != nil {
			return report, err
		}
		report.OrderLines += len(lines)
		afterItem = lines[len(lines)-1].OrderItemID
	}

	// orders refunded or cancelled since the last run
	var afterOrder uint
	for {
		ids, err := s.store.UnpaidOrderIDs(ctx, afterOrder, s.batch)
		if err != nil {
			return report, err
		}
		if len(ids) == 0 {
			break
		}
		if err := s.graph.RemoveOrders(ctx, ids); err != nil {
			return report, err
		}
		report.RemovedOrders += len(ids)
		afterOrder = ids[len(ids)-1]
	}

	s.log.Info("Graph sync completed", "products", report.Products, "order_lines", report.OrderLines, "removed_orders", report.RemovedOrders)
	return report, nil
}

// Run repeats SyncAll every interval until ctx is done. Failed runs are
// logged and retried on the next tick.
func (s *GraphSyncer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SyncAll(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("Periodic graph sync failed", "error", err)
			}
		}
	}
}

// SyncOrder re-projects one order after a payment status change. Orders
// that are not PAID are removed from the graph.
func (s *GraphSyncer) SyncOrder(ctx context.Context, orderID uint) error {
	order, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.PaymentStatus != models.PaymentPaid {
		s.log.Debug("Removing unpaid order from graph", "order_id", orderID, "status", order.PaymentStatus)
		return s.graph.RemoveOrders(ctx, []uint{orderID})
	}

	productIDs := make([]uint, 0, len(order.Items))
	lines := make([]models.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		productIDs = append(productIDs, item.ProductID)
		lines = append(lines, models.OrderLine{
			OrderItemID: item.ID,
			OrderID:     order.ID,
			CustomerID:  order.CustomerID,
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			OrderedAt:   order.CreatedAt,
		})
	}

	products, err := s.store.ProductsByIDs(ctx, productIDs, false)
	if err != nil {
		return err
	}
	if err := s.graph.SyncProductState(ctx, products); err != nil {
		return err
	}
	return s.graph.SyncPaidOrders(ctx, lines)
}
