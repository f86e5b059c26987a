package printer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

func TestStatusAndPrint(t *testing.T) {
	var printed domain.ReceiptData
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.PrinterStatus{Online: true, StatusText: "就绪"})
	})
	mux.HandleFunc("POST /print", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&printed))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewClient(server.URL, time.Second)

	status, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Ready())

	require.NoError(t, c.Print(context.Background(), &domain.ReceiptData{ReceiptNumber: "R12-20261019-00001", Total: "12.50"}))
	assert.Equal(t, "R12-20261019-00001", printed.ReceiptNumber)
}

func TestPaperOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(domain.PrinterStatus{Online: true, PaperOut: true})
			return
		}
		http.Error(w, "缺纸", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, time.Second)

	status, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Ready())

	err = c.Print(context.Background(), &domain.ReceiptData{ReceiptNumber: "R12-20261019-00002"})
	assert.ErrorIs(t, err, domain.ErrPrinterUnavailable)
	assert.Contains(t, err.Error(), "缺纸")
}

func TestOfflinePrinter(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url, 100*time.Millisecond).GetStatus(context.Background())
	assert.ErrorIs(t, err, domain.ErrPrinterUnavailable)
	assert.True(t, domain.IsRetryable(err))
}
