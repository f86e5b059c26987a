package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
)

// terminal 模拟刷卡终端，block 不为空时刷卡会一直等到请求被取消
func terminal(t *testing.T, approved bool, block chan struct{}) *httptest.Server {
	r := chi.NewRouter()
	r.Post("/intents", func(w http.ResponseWriter, r *http.Request) {
		var req intentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.PaymentIntent{ID: "pi_1", Amount: req.Amount, Method: req.Method, Reference: req.Reference})
	})
	r.Post("/intents/{id}/process", func(w http.ResponseWriter, r *http.Request) {
		if block != nil {
			select {
			case <-block:
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		res := domain.PaymentResult{IntentID: chi.URLParam(r, "id"), Approved: approved, Amount: money.FromPence(1250), Reference: "AUTH-42"}
		if !approved {
			res.Message = "余额不足"
		}
		_ = json.NewEncoder(w).Encode(res)
	})
	r.Post("/intents/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return httptest.NewServer(r)
}

func TestApprovedPayment(t *testing.T) {
	server := terminal(t, true, nil)
	defer server.Close()
	c := NewClient(server.URL, time.Second)

	intent, err := c.CreateIntent(context.Background(), money.FromPence(1250), domain.PaymentCard, "sale-1")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, money.FromPence(1250), intent.Amount)

	res, err := c.ProcessCardPayment(context.Background(), intent.ID)
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Equal(t, "AUTH-42", res.Reference)
}

func TestDeclinedPayment(t *testing.T) {
	server := terminal(t, false, nil)
	defer server.Close()
	c := NewClient(server.URL, time.Second)

	res, err := c.ProcessCardPayment(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.False(t, res.Approved)
	assert.Equal(t, "余额不足", res.Message)
}

func TestCardPaymentHasNoTimeout(t *testing.T) {
	block := make(chan struct{})
	server := terminal(t, true, block)
	defer server.Close()
	c := NewClient(server.URL, 10*time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(block)
	}()

	res, err := c.ProcessCardPayment(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.True(t, res.Approved)
}

func TestCardPaymentCanceled(t *testing.T) {
	server := terminal(t, true, make(chan struct{}))
	defer server.Close()
	c := NewClient(server.URL, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.ProcessCardPayment(ctx, "pi_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCancelPayment(t *testing.T) {
	server := terminal(t, true, nil)
	defer server.Close()
	c := NewClient(server.URL, time.Second)

	assert.NoError(t, c.CancelPayment(context.Background(), "pi_1"))
	assert.NoError(t, c.CancelPayment(context.Background(), "gone"))
}

func TestTerminalError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "读卡器故障", http.StatusInternalServerError)
	}))
	defer server.Close()
	c := NewClient(server.URL, time.Second)

	_, err := c.CreateIntent(context.Background(), money.FromPence(100), domain.PaymentCard, "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "读卡器故障")
}
