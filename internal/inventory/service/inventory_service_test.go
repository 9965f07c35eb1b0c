package service

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/sakashimaa/go-grocery/internal/inventory/domain"
	"github.com/sakashimaa/go-grocery/internal/inventory/repository"
	generalDomain "github.com/sakashimaa/go-grocery/pkg/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []generalDomain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event generalDomain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) alerts() []*generalDomain.StockAlertEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*generalDomain.StockAlertEvent
	for _, e := range p.events {
		if alert, ok := e.(*generalDomain.StockAlertEvent); ok {
			out = append(out, alert)
		}
	}
	return out
}

type InventoryServiceSuite struct {
	suite.Suite

	ctx       context.Context
	publisher *recordingPublisher
	svc       *InventoryService
}

func (s *InventoryServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.publisher = &recordingPublisher{}
	s.svc = NewInventoryService(repository.NewMemoryRepository(), s.publisher, nil, zap.NewNop())

	s.seed("apples", "Apples", 12)
}

func (s *InventoryServiceSuite) seed(id, name string, stock int) {
	_, err := s.svc.Upsert(s.ctx, UpsertInput{ProductID: id, Name: name, Price: decimal.RequireFromString("1.50"), Stock: stock})
	s.Require().NoError(err)
}

func (s *InventoryServiceSuite) TestReserve_DecrementsAndReturnsRemaining() {
	left, err := s.svc.Reserve(s.ctx, "apples", 1)
	s.Require().NoError(err)
	s.Require().Equal(11, left)
	s.Require().Empty(s.publisher.alerts())
}

func (s *InventoryServiceSuite) TestReserve_Errors() {
	_, err := s.svc.Reserve(s.ctx, "apples", 13)
	s.Require().ErrorIs(err, domain.ErrOutOfStock)

	_, err = s.svc.Reserve(s.ctx, "pears", 1)
	s.Require().ErrorIs(err, domain.ErrProductNotFound)

	_, err = s.svc.Reserve(s.ctx, "apples", 0)
	s.Require().ErrorIs(err, domain.ErrInvalidQuantity)

	entry, err := s.svc.Get(s.ctx, "apples")
	s.Require().NoError(err)
	s.Require().Equal(12, entry.Stock)
}

func (s *InventoryServiceSuite) TestStockAlert_FiresOnlyOnCrossing() {
	_, err := s.svc.Reserve(s.ctx, "apples", 2)
	s.Require().NoError(err)

	alerts := s.publisher.alerts()
	s.Require().Len(alerts, 1)
	s.Require().Equal("Apples", alerts[0].Name)
	s.Require().Equal(10, alerts[0].Stock)

	_, err = s.svc.Reserve(s.ctx, "apples", 1)
	s.Require().NoError(err)
	s.Require().Len(s.publisher.alerts(), 1)

	low, err := s.svc.CheckLow(s.ctx, "apples")
	s.Require().NoError(err)
	s.Require().True(low)

	_, err = s.svc.Restock(s.ctx, "apples", 20)
	s.Require().NoError(err)
	_, err = s.svc.Restock(s.ctx, "apples", -25)
	s.Require().NoError(err)
	s.Require().Len(s.publisher.alerts(), 2)
}

func (s *InventoryServiceSuite) TestStockAlert_NewLowEntry() {
	s.seed("saffron", "Saffron", 3)

	alerts := s.publisher.alerts()
	s.Require().Len(alerts, 1)
	s.Require().Equal("saffron", alerts[0].ProductID)

	s.seed("saffron", "Saffron", 2)
	s.Require().Len(s.publisher.alerts(), 1)
}

func (s *InventoryServiceSuite) TestRestock_BoundsDelta() {
	_, err := s.svc.Restock(s.ctx, "apples", math.MaxInt)
	s.Require().ErrorIs(err, domain.ErrInvalidQuantity)

	_, err = s.svc.Restock(s.ctx, "apples", -domain.MaxStockDelta-1)
	s.Require().ErrorIs(err, domain.ErrInvalidQuantity)

	left, err := s.svc.Restock(s.ctx, "apples", domain.MaxStockDelta)
	s.Require().NoError(err)
	s.Require().Equal(12+domain.MaxStockDelta, left)
}

func (s *InventoryServiceSuite) TestRestock_NeverNegative() {
	left, err := s.svc.Restock(s.ctx, "apples", -100)
	s.Require().NoError(err)
	s.Require().Zero(left)
}

func (s *InventoryServiceSuite) TestConservation_UnderConcurrency() {
	s.seed("flour", "Flour", 50)

	var g errgroup.Group
	var mu sync.Mutex
	reserved, restocked := 0, 0

	for i := 0; i < 40; i++ {
		g.Go(func() error {
			if _, err := s.svc.Reserve(s.ctx, "flour", 2); err == nil {
				mu.Lock()
				reserved += 2
				mu.Unlock()
			}
			return nil
		})
	}
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := s.svc.Restock(s.ctx, "flour", 1)
			if err == nil {
				mu.Lock()
				restocked++
				mu.Unlock()
			}
			return err
		})
	}
	s.Require().NoError(g.Wait())

	entry, err := s.svc.Get(s.ctx, "flour")
	s.Require().NoError(err)
	s.Require().GreaterOrEqual(entry.Stock, 0)
	s.Require().Equal(50-reserved+restocked, entry.Stock)
}

func (s *InventoryServiceSuite) TestUpsert_Validates() {
	_, err := s.svc.Upsert(s.ctx, UpsertInput{ProductID: "", Stock: 1})
	s.Require().ErrorIs(err, domain.ErrInvalidEntry)

	_, err = s.svc.Upsert(s.ctx, UpsertInput{ProductID: "x", Stock: -1})
	s.Require().ErrorIs(err, domain.ErrInvalidEntry)
}

func TestInventoryServiceSuite(t *testing.T) {
	suite.Run(t, new(InventoryServiceSuite))
}

func TestReserve_LastUnitGoesToExactlyOneCaller(t *testing.T) {
	ctx := context.Background()
	svc := NewInventoryService(repository.NewMemoryRepository(), &recordingPublisher{}, nil, zap.NewNop())

	_, err := svc.Upsert(ctx, UpsertInput{ProductID: "bread", Name: "Bread", Stock: 1})
	require.NoError(t, err)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(ctx, "bread", 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, rejected int
	for err := range results {
		if err == nil {
			ok++
		} else {
			require.ErrorIs(t, err, domain.ErrOutOfStock)
			rejected++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, rejected)
}
