package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/crypto-portfolio/internal/models"
	"github.com/trogers1052/crypto-portfolio/internal/portfolio"
)

func TestLedgerStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	ctx := context.Background()
	today := models.Day(time.Now())
	seed := func(t *testing.T) {
		t.Helper()
		testDB.TruncateAll(t)
		_, _, err := testDB.UpsertAssets(ctx, []*models.Asset{
			{Symbol: "BTC", Name: "Bitcoin"},
			{Symbol: "ETH", Name: "Ethereum"},
		})
		require.NoError(t, err)
	}

	t.Run("Record pairs and aggregates", func(t *testing.T) {
		seed(t)
		ledger := portfolio.NewLedger(testDB.DB)

		_, err := ledger.Record(ctx, portfolio.RecordRequest{
			Owner: "alice", Symbol: "BTC", Date: today, Quantity: decimal.RequireFromString("1.1"), Price: decimal.RequireFromString("2.2"),
		})
		require.NoError(t, err)
		res, err := ledger.Record(ctx, portfolio.RecordRequest{
			Owner: "alice", Symbol: "BTC", Date: today.AddDate(0, 0, -4), Quantity: decimal.RequireFromString("1.1"), Price: decimal.RequireFromString("4.4"),
		})
		require.NoError(t, err)
		require.NotNil(t, res.Transaction.QuoteTransactionID)

		pos, err := testDB.GetPosition(ctx, "alice", "BTC")
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("2.2").Equal(pos.Quantity))
		assert.True(t, decimal.RequireFromString("3.3").Equal(pos.AveragePrice))
		assert.True(t, decimal.RequireFromString("1.65").Equal(pos.LowPriceLevel))
		assert.True(t, decimal.RequireFromString("6.6").Equal(pos.HighPriceLevel))
		require.Len(t, pos.Transactions, 2)
		assert.Equal(t, models.FormatDate(today.AddDate(0, 0, -4)), pos.Transactions[0].Date)

		usd, err := testDB.GetPosition(ctx, "alice", "USD")
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("-7.26").Equal(usd.Quantity))

		txs, err := testDB.ListTransactions(ctx, "alice", "")
		require.NoError(t, err)
		assert.Len(t, txs, 4)
	})

	t.Run("Recalculate is idempotent", func(t *testing.T) {
		seed(t)
		ledger := portfolio.NewLedger(testDB.DB)
		_, err := ledger.Record(ctx, portfolio.RecordRequest{
			Owner: "alice", Symbol: "ETH", Date: today, Quantity: decimal.NewFromInt(3), Price: decimal.NewFromInt(2000),
		})
		require.NoError(t, err)

		agg := portfolio.NewAggregator(testDB.DB)
		first, err := agg.Recalculate(ctx, "alice", "ETH")
		require.NoError(t, err)
		second, err := agg.Recalculate(ctx, "alice", "ETH")
		require.NoError(t, err)
		assert.True(t, first.SameAs(second))
		assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
	})

	t.Run("Remove cascades to the quote transaction", func(t *testing.T) {
		seed(t)
		ledger := portfolio.NewLedger(testDB.DB)
		res, err := ledger.Record(ctx, portfolio.RecordRequest{
			Owner: "alice", Symbol: "BTC", Date: today, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
		})
		require.NoError(t, err)

		err = ledger.Remove(ctx, "alice", res.QuoteTransaction.ID)
		assert.ErrorIs(t, err, portfolio.ErrGeneratedTransaction)

		require.NoError(t, ledger.Remove(ctx, "alice", res.Transaction.ID))

		txs, err := testDB.ListTransactions(ctx, "alice", "")
		require.NoError(t, err)
		assert.Empty(t, txs)
		_, err = testDB.GetPosition(ctx, "alice", "BTC")
		assert.ErrorIs(t, err, portfolio.ErrPositionNotFound)
		_, err = testDB.GetPosition(ctx, "alice", "USD")
		assert.ErrorIs(t, err, portfolio.ErrPositionNotFound)
	})

	t.Run("duplicate external id is rejected", func(t *testing.T) {
		seed(t)
		ledger := portfolio.NewLedger(testDB.DB)
		req := portfolio.RecordRequest{
			Owner: "alice", Symbol: "BTC", Date: today, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
			Source: "kafka", ExternalID: "evt-42",
		}
		_, err := ledger.Record(ctx, req)
		require.NoError(t, err)
		_, err = ledger.Record(ctx, req)
		assert.ErrorIs(t, err, portfolio.ErrDuplicateTransaction)
	})

	t.Run("concurrent records for one owner are serialised", func(t *testing.T) {
		seed(t)
		ledger := portfolio.NewLedger(testDB.DB)

		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := ledger.Record(ctx, portfolio.RecordRequest{
					Owner: "alice", Symbol: "BTC", Date: today, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(10),
				})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		pos, err := testDB.GetPosition(ctx, "alice", "BTC")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(10).Equal(pos.Quantity))
		assert.Len(t, pos.Transactions, 10)

		usd, err := testDB.GetPosition(ctx, "alice", "USD")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(-100).Equal(usd.Quantity))
	})

	t.Run("ListAllPositions and HeldSymbols", func(t *testing.T) {
		seed(t)
		ledger := portfolio.NewLedger(testDB.DB)
		for _, owner := range []string{"alice", "bob"} {
			_, err := ledger.Record(ctx, portfolio.RecordRequest{
				Owner: owner, Symbol: "ETH", Date: today, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(10),
			})
			require.NoError(t, err)
		}

		all, err := testDB.ListAllPositions(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 4)

		symbols, err := testDB.HeldSymbols(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"ETH", "USD"}, symbols)
	})
}

func TestCandleStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)
	ctx := context.Background()

	testDB.TruncateAll(t)
	_, _, err := testDB.UpsertAssets(ctx, []*models.Asset{{Symbol: "BTC", Name: "Bitcoin"}})
	require.NoError(t, err)

	n, err := testDB.IngestCandles(ctx, "BTC", models.PeriodDaily, candlesOn("2024-03-07", "2024-03-08", "2024-03-09"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// The refetch revises the last stored day and adds a new one.
	refetch := candlesOn("2024-03-07", "2024-03-08", "2024-03-09", "2024-03-10")
	refetch[2].Close = decimal.NewFromInt(99)
	n, err = testDB.IngestCandles(ctx, "BTC", models.PeriodDaily, refetch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	candles, err := testDB.GetCandles(ctx, "BTC", models.PeriodDaily)
	require.NoError(t, err)
	require.Len(t, candles, 4)
	assert.Equal(t, day("2024-03-07"), candles[0].Date)
	assert.True(t, decimal.NewFromInt(99).Equal(candles[2].Close))

	closePrice, date, err := testDB.LatestClose(ctx, "BTC", models.PeriodDaily)
	require.NoError(t, err)
	assert.Equal(t, day("2024-03-10"), date)
	assert.True(t, refetch[3].Close.Equal(closePrice))

	weekly, err := testDB.GetCandles(ctx, "BTC", models.PeriodWeekly)
	require.NoError(t, err)
	assert.Empty(t, weekly)

	_, _, err = testDB.LatestClose(ctx, "BTC", models.PeriodWeekly)
	assert.ErrorIs(t, err, portfolio.ErrPriceDataUnavailable)
}
