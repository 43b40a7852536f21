package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

// pagedTotal serves total records over pages of pageSize, reporting reported as the total
func pagedTotal(reported, actual int, calls *[]int) PageFunc {
	return func(_ context.Context, pageIndex, pageSize int) (*integration.SearchPage, error) {
		*calls = append(*calls, pageIndex)
		start := (pageIndex - 1) * pageSize
		end := start + pageSize
		if end > actual {
			end = actual
		}
		page := &integration.SearchPage{Total: reported}
		for i := start; i < end; i++ {
			page.Records = append(page.Records, &integration.OrderEnvelope{OrderID: fmt.Sprintf("o-%05d", i)})
		}
		return page, nil
	}
}

func TestFetcher_FetchAll(t *testing.T) {
	tests := []struct {
		name         string
		reported     int
		actual       int
		pageSize     int
		maxRecords   int
		wantRecords  int
		wantComplete bool
		wantPages    []int
	}{
		{name: "total above cap stops at cap", reported: 2450, actual: 2450, pageSize: 1000, maxRecords: 2000, wantRecords: 2000, wantComplete: false, wantPages: []int{1, 2}},
		{name: "total below cap", reported: 1500, actual: 1500, pageSize: 1000, maxRecords: 2000, wantRecords: 1500, wantComplete: true, wantPages: []int{1, 2}},
		{name: "cap falls inside a page", reported: 2450, actual: 2450, pageSize: 300, maxRecords: 1000, wantRecords: 1000, wantComplete: false, wantPages: []int{1, 2, 3, 4}},
		{name: "single page", reported: 40, actual: 40, pageSize: 100, maxRecords: 2000, wantRecords: 40, wantComplete: true, wantPages: []int{1}},
		{name: "no orders", reported: 0, actual: 0, pageSize: 100, maxRecords: 2000, wantRecords: 0, wantComplete: true, wantPages: []int{1}},
		{name: "default cap", reported: 2450, actual: 2450, pageSize: 1000, maxRecords: 0, wantRecords: 2000, wantComplete: false, wantPages: []int{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []int
			got, err := NewFetcher(zap.NewNop()).FetchAll(context.Background(), pagedTotal(tt.reported, tt.actual, &calls), tt.pageSize, tt.maxRecords)
			require.NoError(t, err)
			assert.Len(t, got.Records, tt.wantRecords)
			assert.Equal(t, tt.wantRecords, got.Cursor.Accumulated)
			assert.Equal(t, tt.reported, got.Cursor.ReportedTotal)
			assert.Equal(t, tt.wantComplete, got.Complete())
			assert.Equal(t, tt.wantPages, calls)
		})
	}
}

func TestFetcher_FetchAll_KeepsWireOrder(t *testing.T) {
	var calls []int
	got, err := NewFetcher(zap.NewNop()).FetchAll(context.Background(), pagedTotal(250, 250, &calls), 100, 2000)
	require.NoError(t, err)
	ids := got.OrderIDs()
	require.Len(t, ids, 250)
	assert.Equal(t, "o-00000", ids[0])
	assert.Equal(t, "o-00100", ids[100])
	assert.Equal(t, "o-00249", ids[249])
}

func TestFetcher_FetchAll_TotalMismatch(t *testing.T) {
	tests := []struct {
		name     string
		reported int
		actual   int
	}{
		{name: "fewer records than reported", reported: 1500, actual: 1200},
		{name: "more records than reported", reported: 150, actual: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []int
			_, err := NewFetcher(zap.NewNop()).FetchAll(context.Background(), pagedTotal(tt.reported, tt.actual, &calls), 100, 2000)
			var fe *integration.FatalConsistencyError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tt.reported, fe.Total)
			assert.Equal(t, tt.reported, fe.Expected)
			assert.ErrorIs(t, err, integration.ErrFatalConsistency)
		})
	}
}

func TestFetcher_FetchAll_PageError(t *testing.T) {
	boom := &integration.TransientHTTPError{Endpoint: "orderList", StatusCode: 503}
	fetch := func(_ context.Context, pageIndex, pageSize int) (*integration.SearchPage, error) {
		if pageIndex == 2 {
			return nil, boom
		}
		page := &integration.SearchPage{Total: 150}
		for i := 0; i < pageSize; i++ {
			page.Records = append(page.Records, &integration.OrderEnvelope{OrderID: fmt.Sprint(i)})
		}
		return page, nil
	}

	_, err := NewFetcher(zap.NewNop()).FetchAll(context.Background(), fetch, 100, 2000)
	assert.Same(t, boom, err)
}

func TestFetcher_FetchAll_RejectedRecordsCount(t *testing.T) {
	fetch := func(_ context.Context, pageIndex, _ int) (*integration.SearchPage, error) {
		page := &integration.SearchPage{Total: 4}
		switch pageIndex {
		case 1:
			page.Records = []*integration.OrderEnvelope{{OrderID: "a"}}
			page.Rejected = []integration.RejectedRecord{{OrderID: "b", Position: 1}}
		case 2:
			page.Records = []*integration.OrderEnvelope{{OrderID: "c"}, {OrderID: "d"}}
		}
		return page, nil
	}

	got, err := NewFetcher(zap.NewNop()).FetchAll(context.Background(), fetch, 2, 2000)
	require.NoError(t, err)
	assert.True(t, got.Complete())
	assert.Equal(t, 4, got.Cursor.Accumulated)
	assert.Equal(t, []string{"a", "c", "d"}, got.OrderIDs())
	require.Len(t, got.Rejected, 1)
	assert.Equal(t, "b", got.Rejected[0].OrderID)
}

func TestFetcher_FetchAll_TruncatesAroundRejected(t *testing.T) {
	// page of 4 wire records, cap 3: positions 0..2 survive, position 1 was rejected
	fetch := func(_ context.Context, _, _ int) (*integration.SearchPage, error) {
		return &integration.SearchPage{
			Total:    10,
			Records:  []*integration.OrderEnvelope{{OrderID: "p0"}, {OrderID: "p2"}, {OrderID: "p3"}},
			Rejected: []integration.RejectedRecord{{OrderID: "p1", Position: 1}},
		}, nil
	}

	got, err := NewFetcher(zap.NewNop()).FetchAll(context.Background(), fetch, 4, 3)
	require.NoError(t, err)
	assert.False(t, got.Complete())
	assert.Equal(t, 3, got.Cursor.Accumulated)
	assert.Equal(t, []string{"p0", "p2"}, got.OrderIDs())
	require.Len(t, got.Rejected, 1)
}

func TestFetcher_FetchAll_InvalidPageSize(t *testing.T) {
	_, err := NewFetcher(zap.NewNop()).FetchAll(context.Background(), nil, 0, 2000)
	assert.ErrorIs(t, err, integration.ErrConfiguration)
}
