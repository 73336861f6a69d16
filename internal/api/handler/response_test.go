package handler_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/evetabi/settlement/internal/api/handler"
	"github.com/evetabi/settlement/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInsufficientBalance, http.StatusPaymentRequired},
		{domain.ErrTokenExpired, http.StatusUnauthorized},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrMarketNotFound, http.StatusNotFound},
		{fmt.Errorf("dispute_repo.GetByID: %w", domain.ErrDisputeNotFound), http.StatusNotFound},
		{domain.ErrInvalidQuantity, http.StatusBadRequest},
		{domain.ErrAlreadyResolved, http.StatusConflict},
		{domain.ErrWindowExpired, http.StatusConflict},
		{domain.ErrPoolEmpty, http.StatusConflict},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := handler.StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
